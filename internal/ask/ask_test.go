package ask

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sqlscout/sqlscout/internal/llm"
	"github.com/sqlscout/sqlscout/internal/nouns"
	"github.com/sqlscout/sqlscout/internal/query"
	"github.com/sqlscout/sqlscout/internal/schema"
	"github.com/sqlscout/sqlscout/internal/selector"
	"github.com/sqlscout/sqlscout/internal/sqlgen"
)

type fakeLister struct {
	tables []string
	err    error
}

func (f *fakeLister) ListTables(context.Context) ([]string, error) {
	return f.tables, f.err
}

type fakeSelector struct {
	selection selector.Selection
	err       error
}

func (f *fakeSelector) Select(_ context.Context, _ string, _ []string) (selector.Selection, error) {
	return f.selection, f.err
}

type fakeContexts struct {
	contexts []schema.Context
	err      error
}

func (f *fakeContexts) Build(_ context.Context, _ []string) ([]schema.Context, error) {
	return f.contexts, f.err
}

type fakeNouns struct {
	matches []nouns.Match
	err     error
}

func (f *fakeNouns) Search(_ context.Context, _ string, _ int) ([]nouns.Match, error) {
	return f.matches, f.err
}

type fakeGenerator struct {
	inputs  []sqlgen.Input
	outputs []string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, input sqlgen.Input) (string, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return "", f.err
	}
	out := f.outputs[0]
	if len(f.outputs) > 1 {
		f.outputs = f.outputs[1:]
	}
	return out, nil
}

type fakeEngine struct {
	requests []query.Request
	results  []query.Result
	errs     []error
}

func (f *fakeEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	f.requests = append(f.requests, request)
	idx := len(f.requests) - 1
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	var result query.Result
	if idx < len(f.results) {
		result = f.results[idx]
	}
	return result, err
}

type fakeChat struct {
	content string
	err     error
}

func (f *fakeChat) Complete(_ context.Context, _ llm.ChatRequest) (llm.ChatResponse, error) {
	if f.err != nil {
		return llm.ChatResponse{}, f.err
	}
	return llm.ChatResponse{Content: f.content, Model: "fake"}, nil
}

func testService() *Service {
	return &Service{
		Lister:   &fakeLister{tables: []string{"invoices", "customers"}},
		Selector: &fakeSelector{selection: selector.Selection{Tables: []string{"invoices"}}},
		Contexts: &fakeContexts{contexts: []schema.Context{{TableName: "invoices", Columns: []string{"total numeric"}}}},
		Nouns:    &fakeNouns{matches: []nouns.Match{{Value: "Brazil", Table: "invoices", Column: "billing_country", Score: 0.9}}},
		Engine: &fakeEngine{results: []query.Result{{
			Columns: []string{"total"},
			Rows:    [][]any{{float64(42)}},
		}}},
		RowLimit: 10,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestAskRunsFullPipeline(t *testing.T) {
	service := testService()
	generator := &fakeGenerator{outputs: []string{"SELECT SUM(total) AS total FROM invoices"}}
	service.Generator = generator

	response, err := service.Ask(context.Background(), Request{Question: "total revenue?"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if response.SQL != "SELECT SUM(total) AS total FROM invoices" {
		t.Fatalf("sql = %q", response.SQL)
	}
	if response.RowCount != 1 || response.Rows[0][0] != float64(42) {
		t.Fatalf("rows = %v", response.Rows)
	}
	if len(response.Tables) != 1 || response.Tables[0] != "invoices" {
		t.Fatalf("tables = %v", response.Tables)
	}
	if response.Repaired {
		t.Fatal("no repair expected")
	}

	if len(generator.inputs) != 1 {
		t.Fatalf("generator inputs = %d", len(generator.inputs))
	}
	if len(generator.inputs[0].Matches) != 1 || generator.inputs[0].Matches[0].Value != "Brazil" {
		t.Fatalf("matches = %v", generator.inputs[0].Matches)
	}
	if generator.inputs[0].RowLimit != 10 {
		t.Fatalf("row limit = %d", generator.inputs[0].RowLimit)
	}
}

func TestAskRejectsUnsafeGeneratedSQL(t *testing.T) {
	service := testService()
	service.Generator = &fakeGenerator{outputs: []string{"DROP TABLE invoices"}}

	if _, err := service.Ask(context.Background(), Request{Question: "q"}); err == nil {
		t.Fatal("expected rejection")
	}
}

func TestAskRepairsFailedQueryOnce(t *testing.T) {
	service := testService()
	service.RepairEnabled = true
	generator := &fakeGenerator{outputs: []string{
		"SELECT bad FROM invoices",
		"SELECT total FROM invoices",
	}}
	service.Generator = generator
	engine := &fakeEngine{
		errs: []error{errors.New(`column "bad" does not exist`), nil},
		results: []query.Result{
			{},
			{Columns: []string{"total"}, Rows: [][]any{{float64(1)}}},
		},
	}
	service.Engine = engine

	response, err := service.Ask(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !response.Repaired {
		t.Fatal("expected repaired response")
	}
	if response.SQL != "SELECT total FROM invoices" {
		t.Fatalf("sql = %q", response.SQL)
	}
	if len(generator.inputs) != 2 {
		t.Fatalf("generator inputs = %d", len(generator.inputs))
	}
	if !strings.Contains(generator.inputs[1].PreviousError, "does not exist") {
		t.Fatalf("repair input = %+v", generator.inputs[1])
	}
}

func TestAskSurfacesExecutionErrorWithoutRepair(t *testing.T) {
	service := testService()
	service.Generator = &fakeGenerator{outputs: []string{"SELECT total FROM invoices"}}
	service.Engine = &fakeEngine{errs: []error{errors.New("relation does not exist")}}

	if _, err := service.Ask(context.Background(), Request{Question: "q"}); err == nil {
		t.Fatal("expected execution error")
	}
}

func TestAskContinuesWhenNounSearchFails(t *testing.T) {
	service := testService()
	service.Nouns = &fakeNouns{err: errors.New("index not built")}
	generator := &fakeGenerator{outputs: []string{"SELECT 1"}}
	service.Generator = generator

	response, err := service.Ask(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(response.Matches) != 0 {
		t.Fatalf("matches = %v", response.Matches)
	}
	if len(generator.inputs[0].Matches) != 0 {
		t.Fatalf("generator matches = %v", generator.inputs[0].Matches)
	}
}

func TestAskPhrasesAnswerWhenEnabled(t *testing.T) {
	service := testService()
	service.Generator = &fakeGenerator{outputs: []string{"SELECT 1"}}
	service.AnswerEnabled = true
	service.Chat = &fakeChat{content: "Total revenue is 42."}

	response, err := service.Ask(context.Background(), Request{Question: "total revenue?"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if response.Answer != "Total revenue is 42." {
		t.Fatalf("answer = %q", response.Answer)
	}
}

func TestAskReturnsRowsWhenAnswerFails(t *testing.T) {
	service := testService()
	service.Generator = &fakeGenerator{outputs: []string{"SELECT 1"}}
	service.AnswerEnabled = true
	service.Chat = &fakeChat{err: errors.New("rate limited")}

	response, err := service.Ask(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if response.Answer != "" {
		t.Fatalf("answer = %q", response.Answer)
	}
	if response.RowCount != 1 {
		t.Fatalf("rows = %v", response.Rows)
	}
}

func TestAskDegradedPathsTolerateNilLogger(t *testing.T) {
	service := testService()
	service.Logger = nil
	service.Nouns = &fakeNouns{err: errors.New("index not built")}
	service.Generator = &fakeGenerator{outputs: []string{"SELECT 1"}}
	service.AnswerEnabled = true
	service.Chat = &fakeChat{err: errors.New("rate limited")}

	response, err := service.Ask(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if response.Answer != "" || response.RowCount != 1 {
		t.Fatalf("response = %+v", response)
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	service := testService()
	service.Generator = &fakeGenerator{outputs: []string{"SELECT 1"}}

	if _, err := service.Ask(context.Background(), Request{Question: "  "}); err == nil {
		t.Fatal("expected question error")
	}
}
