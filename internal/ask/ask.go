package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sqlscout/sqlscout/internal/llm"
	"github.com/sqlscout/sqlscout/internal/nouns"
	"github.com/sqlscout/sqlscout/internal/observability"
	"github.com/sqlscout/sqlscout/internal/query"
	"github.com/sqlscout/sqlscout/internal/schema"
	"github.com/sqlscout/sqlscout/internal/selector"
	"github.com/sqlscout/sqlscout/internal/sqlgen"
)

// ErrSQLRejected marks generated SQL that failed read-only validation.
var ErrSQLRejected = errors.New("generated sql rejected")

type Request struct {
	Question string `json:"question"`
}

type Response struct {
	Question   string        `json:"question"`
	Tables     []string      `json:"tables"`
	Matches    []nouns.Match `json:"matches,omitempty"`
	SQL        string        `json:"sql"`
	Columns    []string      `json:"columns"`
	Rows       [][]any       `json:"rows"`
	RowCount   int           `json:"row_count"`
	Answer     string        `json:"answer,omitempty"`
	Repaired   bool          `json:"repaired"`
	DurationMs int64         `json:"duration_ms"`
}

type tableLister interface {
	ListTables(ctx context.Context) ([]string, error)
}

type tableSelector interface {
	Select(ctx context.Context, question string, tables []string) (selector.Selection, error)
}

type contextBuilder interface {
	Build(ctx context.Context, tableNames []string) ([]schema.Context, error)
}

type nounSearcher interface {
	Search(ctx context.Context, term string, topK int) ([]nouns.Match, error)
}

type sqlGenerator interface {
	Generate(ctx context.Context, input sqlgen.Input) (string, error)
}

// Service runs the full question pipeline: pick tables, gather context,
// retrieve value spellings, generate SQL, execute it and phrase an answer.
type Service struct {
	Lister        tableLister
	Selector      tableSelector
	Contexts      contextBuilder
	Nouns         nounSearcher
	Generator     sqlGenerator
	Engine        query.Engine
	Chat          llm.ChatClient
	RowLimit      int
	RepairEnabled bool
	AnswerEnabled bool
	Logger        *slog.Logger
}

func (s *Service) Ask(ctx context.Context, request Request) (Response, error) {
	start := time.Now()
	response, err := s.ask(ctx, request)
	elapsed := time.Since(start)
	if err != nil {
		observability.ObserveAsk("error", elapsed)
		return Response{}, err
	}
	observability.ObserveAsk("ok", elapsed)
	response.DurationMs = elapsed.Milliseconds()
	return response, nil
}

func (s *Service) ask(ctx context.Context, request Request) (Response, error) {
	question := strings.TrimSpace(request.Question)
	if question == "" {
		return Response{}, fmt.Errorf("question is required")
	}

	tables, err := s.Lister.ListTables(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("list tables: %w", err)
	}
	selection, err := s.Selector.Select(ctx, question, tables)
	if err != nil {
		return Response{}, err
	}
	contexts, err := s.Contexts.Build(ctx, selection.Tables)
	if err != nil {
		return Response{}, err
	}

	// Value retrieval is best effort. A cold index should not block answers.
	var matches []nouns.Match
	if s.Nouns != nil {
		matches, err = s.Nouns.Search(ctx, question, 0)
		if err != nil {
			s.warn("noun search failed, continuing without hints", err)
			matches = nil
		}
	}

	input := sqlgen.Input{
		Question: question,
		Contexts: contexts,
		Matches:  matches,
		RowLimit: s.RowLimit,
	}
	sqlText, err := s.Generator.Generate(ctx, input)
	if err != nil {
		return Response{}, err
	}
	if err := sqlgen.Validate(sqlText); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrSQLRejected, err)
	}

	repaired := false
	result, execErr := s.Engine.Execute(ctx, query.Request{SQL: sqlText, RowLimit: s.RowLimit})
	if execErr != nil && s.RepairEnabled {
		repairedSQL, repairErr := s.repair(ctx, input, sqlText, execErr)
		if repairErr != nil {
			return Response{}, fmt.Errorf("execute query: %w", execErr)
		}
		result, execErr = s.Engine.Execute(ctx, query.Request{SQL: repairedSQL, RowLimit: s.RowLimit})
		if execErr == nil {
			sqlText = repairedSQL
			repaired = true
		}
	}
	if execErr != nil {
		return Response{}, fmt.Errorf("execute query: %w", execErr)
	}

	response := Response{
		Question: question,
		Tables:   selection.Tables,
		Matches:  matches,
		SQL:      sqlText,
		Columns:  result.Columns,
		Rows:     result.Rows,
		RowCount: len(result.Rows),
		Repaired: repaired,
	}

	if s.AnswerEnabled && s.Chat != nil {
		answer, err := s.phraseAnswer(ctx, question, sqlText, result)
		if err != nil {
			s.warn("answer phrasing failed, returning rows only", err)
		} else {
			response.Answer = answer
		}
	}
	return response, nil
}

func (s *Service) warn(msg string, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.Warn(msg, "error", err)
}

// repair gives the model one shot at fixing a query the database rejected.
func (s *Service) repair(ctx context.Context, input sqlgen.Input, failedSQL string, execErr error) (string, error) {
	observability.IncrementSQLRepair()
	input.PreviousSQL = failedSQL
	input.PreviousError = execErr.Error()

	repairedSQL, err := s.Generator.Generate(ctx, input)
	if err != nil {
		return "", err
	}
	if err := sqlgen.Validate(repairedSQL); err != nil {
		return "", err
	}
	return repairedSQL, nil
}
