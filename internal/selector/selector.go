package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sqlscout/sqlscout/internal/llm"
)

// Selector narrows a large warehouse schema down to the tables relevant to
// one question. When the schema is small enough it skips the model call and
// returns everything.
type Selector struct {
	Chat                      llm.ChatClient
	MaxTablesWithoutSelection int
	Categories                map[string][]string
	Logger                    *slog.Logger
}

type Selection struct {
	Tables     []string `json:"tables"`
	Categories []string `json:"categories,omitempty"`
	UsedModel  bool     `json:"used_model"`
}

const tableSelectionSystemPrompt = `You help route analytics questions to database tables.
Return ONLY the names relevant to the question. Respond with a JSON object.`

func (s *Selector) Select(ctx context.Context, question string, tables []string) (Selection, error) {
	if strings.TrimSpace(question) == "" {
		return Selection{}, fmt.Errorf("question is required")
	}
	if len(tables) == 0 {
		return Selection{}, fmt.Errorf("no tables available")
	}
	if s.MaxTablesWithoutSelection > 0 && len(tables) <= s.MaxTablesWithoutSelection {
		return Selection{Tables: append([]string(nil), tables...)}, nil
	}
	if s.Chat == nil {
		return Selection{Tables: append([]string(nil), tables...)}, nil
	}

	if len(s.Categories) > 0 {
		return s.selectByCategory(ctx, question, tables)
	}
	return s.selectByTable(ctx, question, tables)
}

func (s *Selector) selectByTable(ctx context.Context, question string, tables []string) (Selection, error) {
	prompt := fmt.Sprintf(
		"Available tables:\n%s\n\nQuestion: %s\n\nRespond with {\"tables\": [\"...\"]} listing only relevant table names.",
		strings.Join(tables, "\n"), question)

	resp, err := s.Chat.Complete(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: tableSelectionSystemPrompt},
			{Role: "user", Content: prompt},
		},
		JSONMode: true,
	})
	if err != nil {
		return Selection{}, fmt.Errorf("table selection: %w", err)
	}

	var parsed struct {
		Tables []string `json:"tables"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return Selection{}, fmt.Errorf("decode table selection %q: %w", resp.Content, err)
	}

	chosen := filterKnown(parsed.Tables, tables)
	if len(chosen) == 0 {
		if s.Logger != nil {
			s.Logger.Warn("table selection returned no known tables, using all", "question_length", len(question))
		}
		return Selection{Tables: append([]string(nil), tables...), UsedModel: true}, nil
	}
	return Selection{Tables: chosen, UsedModel: true}, nil
}

func (s *Selector) selectByCategory(ctx context.Context, question string, tables []string) (Selection, error) {
	names := make([]string, 0, len(s.Categories))
	for name := range s.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "%s: %s\n", name, strings.Join(s.Categories[name], ", "))
	}
	prompt := fmt.Sprintf(
		"Table categories:\n%s\nQuestion: %s\n\nRespond with {\"categories\": [\"...\"]} listing only relevant category names.",
		sb.String(), question)

	resp, err := s.Chat.Complete(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: tableSelectionSystemPrompt},
			{Role: "user", Content: prompt},
		},
		JSONMode: true,
	})
	if err != nil {
		return Selection{}, fmt.Errorf("category selection: %w", err)
	}

	var parsed struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return Selection{}, fmt.Errorf("decode category selection %q: %w", resp.Content, err)
	}

	chosenCategories := filterKnown(parsed.Categories, names)
	expanded := make([]string, 0)
	for _, category := range chosenCategories {
		expanded = append(expanded, s.Categories[category]...)
	}
	chosen := filterKnown(expanded, tables)
	if len(chosen) == 0 {
		if s.Logger != nil {
			s.Logger.Warn("category selection matched no tables, using all", "question_length", len(question))
		}
		return Selection{Tables: append([]string(nil), tables...), UsedModel: true}, nil
	}
	return Selection{Tables: chosen, Categories: chosenCategories, UsedModel: true}, nil
}

// filterKnown keeps candidates that exist in known, deduplicated, in
// candidate order. Model output may contain hallucinated names.
func filterKnown(candidates, known []string) []string {
	knownSet := make(map[string]struct{}, len(known))
	for _, name := range known {
		knownSet[name] = struct{}{}
	}
	seen := make(map[string]struct{}, len(candidates))
	kept := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		name := strings.TrimSpace(candidate)
		if _, ok := knownSet[name]; !ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		kept = append(kept, name)
	}
	return kept
}
