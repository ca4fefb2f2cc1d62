package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/sqlscout/sqlscout/internal/llm"
)

type fakeChat struct {
	requests []llm.ChatRequest
	content  string
	err      error
}

func (f *fakeChat) Complete(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return llm.ChatResponse{}, f.err
	}
	return llm.ChatResponse{Content: f.content, Model: "fake"}, nil
}

func TestSelectSkipsModelForSmallSchemas(t *testing.T) {
	chat := &fakeChat{content: `{"tables": ["customers"]}`}
	s := &Selector{Chat: chat, MaxTablesWithoutSelection: 5}

	selection, err := s.Select(context.Background(), "how many customers?", []string{"customers", "invoices"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(selection.Tables) != 2 {
		t.Fatalf("tables = %v", selection.Tables)
	}
	if selection.UsedModel {
		t.Fatal("model should not be consulted for a small schema")
	}
	if len(chat.requests) != 0 {
		t.Fatalf("chat requests = %d", len(chat.requests))
	}
}

func TestSelectFiltersHallucinatedTables(t *testing.T) {
	chat := &fakeChat{content: `{"tables": ["customers", "made_up", "customers"]}`}
	s := &Selector{Chat: chat, MaxTablesWithoutSelection: 1}

	selection, err := s.Select(context.Background(), "biggest customer?", []string{"customers", "invoices", "albums"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(selection.Tables) != 1 || selection.Tables[0] != "customers" {
		t.Fatalf("tables = %v", selection.Tables)
	}
	if !selection.UsedModel {
		t.Fatal("expected model selection")
	}
	if len(chat.requests) != 1 || !chat.requests[0].JSONMode {
		t.Fatalf("chat requests = %+v", chat.requests)
	}
}

func TestSelectFallsBackToAllWhenNothingMatches(t *testing.T) {
	chat := &fakeChat{content: `{"tables": ["made_up"]}`}
	s := &Selector{Chat: chat, MaxTablesWithoutSelection: 1}

	selection, err := s.Select(context.Background(), "anything?", []string{"customers", "invoices"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(selection.Tables) != 2 {
		t.Fatalf("tables = %v", selection.Tables)
	}
}

func TestSelectExpandsCategories(t *testing.T) {
	chat := &fakeChat{content: `{"categories": ["Music", "Ghost"]}`}
	s := &Selector{
		Chat:                      chat,
		MaxTablesWithoutSelection: 1,
		Categories: map[string][]string{
			"Music":    {"albums", "tracks"},
			"Business": {"customers", "invoices"},
		},
	}

	selection, err := s.Select(context.Background(), "top selling album?", []string{"albums", "tracks", "customers", "invoices"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(selection.Tables) != 2 || selection.Tables[0] != "albums" || selection.Tables[1] != "tracks" {
		t.Fatalf("tables = %v", selection.Tables)
	}
	if len(selection.Categories) != 1 || selection.Categories[0] != "Music" {
		t.Fatalf("categories = %v", selection.Categories)
	}
}

func TestSelectPropagatesModelError(t *testing.T) {
	chat := &fakeChat{err: errors.New("rate limited")}
	s := &Selector{Chat: chat, MaxTablesWithoutSelection: 1}

	if _, err := s.Select(context.Background(), "q", []string{"a", "b"}); err == nil {
		t.Fatal("expected model error")
	}
}

func TestSelectRejectsBadJSON(t *testing.T) {
	chat := &fakeChat{content: "not json"}
	s := &Selector{Chat: chat, MaxTablesWithoutSelection: 1}

	if _, err := s.Select(context.Background(), "q", []string{"a", "b"}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSelectRequiresQuestion(t *testing.T) {
	s := &Selector{MaxTablesWithoutSelection: 5}
	if _, err := s.Select(context.Background(), "   ", []string{"a"}); err == nil {
		t.Fatal("expected question error")
	}
}
