package sqlgen

import (
	"context"
	"strings"
	"testing"

	"github.com/sqlscout/sqlscout/internal/llm"
	"github.com/sqlscout/sqlscout/internal/nouns"
	"github.com/sqlscout/sqlscout/internal/schema"
)

type fakeChat struct {
	requests []llm.ChatRequest
	content  string
}

func (f *fakeChat) Complete(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.requests = append(f.requests, req)
	return llm.ChatResponse{Content: f.content, Model: "fake"}, nil
}

func testInput() Input {
	return Input{
		Question: "Which country spends the most?",
		Contexts: []schema.Context{{
			TableName:  "invoices",
			Columns:    []string{"id integer NOT NULL", "billing_country text", "total numeric"},
			SampleRows: [][]any{{1, "Brazil", 9.9}},
		}},
		Matches: []nouns.Match{
			{Value: "Brazil", Table: "invoices", Column: "billing_country", Score: 0.92},
		},
		RowLimit: 10,
	}
}

func TestGenerateBuildsPromptAndStripsFences(t *testing.T) {
	chat := &fakeChat{content: "```sql\nSELECT billing_country FROM invoices\n```"}
	generator := &Generator{Chat: chat, Dialect: "DuckDB"}

	sqlText, err := generator.Generate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if sqlText != "SELECT billing_country FROM invoices" {
		t.Fatalf("sql = %q", sqlText)
	}

	if len(chat.requests) != 1 {
		t.Fatalf("requests = %d", len(chat.requests))
	}
	messages := chat.requests[0].Messages
	if len(messages) != 2 {
		t.Fatalf("messages = %d", len(messages))
	}
	if !strings.Contains(messages[0].Content, "DuckDB") {
		t.Fatalf("system prompt = %q", messages[0].Content)
	}
	user := messages[1].Content
	for _, want := range []string{"Table invoices", "billing_country text", "Brazil", "Which country spends the most?"} {
		if !strings.Contains(user, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, user)
		}
	}
}

func TestGenerateAddsRepairMessage(t *testing.T) {
	chat := &fakeChat{content: "SELECT 1"}
	generator := &Generator{Chat: chat}

	input := testInput()
	input.PreviousSQL = "SELECT bad_column FROM invoices"
	input.PreviousError = `column "bad_column" does not exist`

	if _, err := generator.Generate(context.Background(), input); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	messages := chat.requests[0].Messages
	if len(messages) != 3 {
		t.Fatalf("messages = %d", len(messages))
	}
	if !strings.Contains(messages[2].Content, "bad_column") {
		t.Fatalf("repair message = %q", messages[2].Content)
	}
}

func TestGenerateRequiresContext(t *testing.T) {
	generator := &Generator{Chat: &fakeChat{content: "SELECT 1"}}
	if _, err := generator.Generate(context.Background(), Input{Question: "q"}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestStripMarkdown(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{raw: "SELECT 1", want: "SELECT 1"},
		{raw: "```sql\nSELECT 1\n```", want: "SELECT 1"},
		{raw: "```\nSELECT 1\n```", want: "SELECT 1"},
		{raw: "  ```sql\nSELECT 1\n```\n", want: "SELECT 1"},
		{raw: "```sql\nSELECT 1\n```\ntrailer", want: "SELECT 1"},
		{raw: "\nSELECT 1;\n", want: "SELECT 1;"},
	}
	for _, tc := range cases {
		if got := StripMarkdown(tc.raw); got != tc.want {
			t.Fatalf("StripMarkdown(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestValidateAllowsReadOnlyQueries(t *testing.T) {
	for _, sqlText := range []string{
		"SELECT * FROM invoices",
		"select count(*) from customers;",
		"WITH t AS (SELECT 1) SELECT * FROM t",
	} {
		if err := Validate(sqlText); err != nil {
			t.Fatalf("Validate(%q) error = %v", sqlText, err)
		}
	}
}

func TestValidateRejectsMutationsAndMultiStatements(t *testing.T) {
	for _, sqlText := range []string{
		"",
		"   ",
		"DELETE FROM invoices",
		"DROP TABLE invoices",
		"SELECT 1; DROP TABLE invoices",
		"INSERT INTO t VALUES (1)",
		"explain SELECT 1",
		"WITH t AS (SELECT 1) UPDATE x SET a = 1",
	} {
		if err := Validate(sqlText); err == nil {
			t.Fatalf("Validate(%q) expected error", sqlText)
		}
	}
}
