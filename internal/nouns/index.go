package nouns

import (
	"context"
	"fmt"
	"strings"

	"github.com/liliang-cn/sqvect/pkg/core"
	"github.com/liliang-cn/sqvect/pkg/sqvect"

	"github.com/sqlscout/sqlscout/internal/llm"
	"github.com/sqlscout/sqlscout/internal/observability"
)

const embedBatchSize = 64

type backendHit struct {
	ID      string
	Score   float64
	Content string
}

type vectorBackend interface {
	Upsert(ctx context.Context, id, content string, vector []float32, metadata map[string]string) error
	Search(ctx context.Context, vector []float32, topK int) ([]backendHit, error)
	Close() error
}

// Index stores noun embeddings in a local sqlite-backed vector store and
// answers nearest-neighbour searches for question terms.
type Index struct {
	backend  vectorBackend
	embedder llm.Embedder
}

func OpenIndex(path string, embedder llm.Embedder) (*Index, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("index path is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	db, err := sqvect.Open(sqvect.Config{
		Path:         path,
		Dimensions:   0,
		SimilarityFn: core.CosineSimilarity,
	})
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	return &Index{backend: &sqvectBackend{db: db}, embedder: embedder}, nil
}

func newIndexWithBackend(backend vectorBackend, embedder llm.Embedder) *Index {
	return &Index{backend: backend, embedder: embedder}
}

func (i *Index) Close() error {
	return i.backend.Close()
}

// Rebuild embeds every noun and upserts it, returning the entries so the
// caller can snapshot them without a second round of embedding calls.
func (i *Index) Rebuild(ctx context.Context, values []Noun) ([]SnapshotEntry, error) {
	entries := make([]SnapshotEntry, 0, len(values))
	for start := 0; start < len(values); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(values) {
			end = len(values)
		}
		batch := values[start:end]
		inputs := make([]string, len(batch))
		for j, noun := range batch {
			inputs[j] = noun.Value
		}
		vectors, err := i.embedder.Embed(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("embed nouns: %w", err)
		}
		for j, noun := range batch {
			if err := i.upsert(ctx, noun, vectors[j]); err != nil {
				return nil, err
			}
			entries = append(entries, SnapshotEntry{
				Table:  noun.Table,
				Column: noun.Column,
				Value:  noun.Value,
				Vector: vectors[j],
			})
		}
	}
	observability.SetNounIndexSize(len(entries))
	return entries, nil
}

// Restore loads previously embedded entries without calling the embedder.
func (i *Index) Restore(ctx context.Context, entries []SnapshotEntry) error {
	for _, entry := range entries {
		noun := Noun{Value: entry.Value, Table: entry.Table, Column: entry.Column}
		if err := i.upsert(ctx, noun, entry.Vector); err != nil {
			return err
		}
	}
	observability.SetNounIndexSize(len(entries))
	return nil
}

func (i *Index) Search(ctx context.Context, term string, topK int) ([]Match, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("search term is required")
	}
	if topK <= 0 {
		topK = 5
	}
	vectors, err := i.embedder.Embed(ctx, []string{term})
	if err != nil {
		return nil, fmt.Errorf("embed search term: %w", err)
	}
	hits, err := i.backend.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		table, column := splitNounID(hit.ID)
		matches = append(matches, Match{
			Value:  hit.Content,
			Table:  table,
			Column: column,
			Score:  hit.Score,
		})
	}
	observability.AddNounMatches(len(matches))
	return matches, nil
}

func (i *Index) upsert(ctx context.Context, noun Noun, vector []float32) error {
	err := i.backend.Upsert(ctx, nounID(noun), noun.Value, vector, map[string]string{
		"table":  noun.Table,
		"column": noun.Column,
	})
	if err != nil {
		return fmt.Errorf("upsert noun %q: %w", noun.Value, err)
	}
	return nil
}

// nounID packs the source location into the embedding ID so search hits can
// report where a value came from.
func nounID(noun Noun) string {
	return noun.Table + "|" + noun.Column + "|" + noun.Value
}

func splitNounID(id string) (table, column string) {
	parts := strings.SplitN(id, "|", 3)
	if len(parts) < 3 {
		return "", ""
	}
	return parts[0], parts[1]
}

type sqvectBackend struct {
	db *sqvect.DB
}

func (b *sqvectBackend) Upsert(ctx context.Context, id, content string, vector []float32, metadata map[string]string) error {
	return b.db.Vector().Upsert(ctx, &core.Embedding{
		ID:       id,
		Vector:   vector,
		Content:  content,
		Metadata: metadata,
	})
}

func (b *sqvectBackend) Search(ctx context.Context, vector []float32, topK int) ([]backendHit, error) {
	results, err := b.db.Vector().Search(ctx, vector, core.SearchOptions{TopK: topK})
	if err != nil {
		return nil, err
	}
	hits := make([]backendHit, 0, len(results))
	for _, result := range results {
		hits = append(hits, backendHit{
			ID:      result.ID,
			Score:   float64(result.Score),
			Content: result.Content,
		})
	}
	return hits, nil
}

func (b *sqvectBackend) Close() error {
	return b.db.Close()
}
