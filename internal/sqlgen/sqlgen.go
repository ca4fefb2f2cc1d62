package sqlgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sqlscout/sqlscout/internal/llm"
	"github.com/sqlscout/sqlscout/internal/nouns"
	"github.com/sqlscout/sqlscout/internal/schema"
)

// Generator turns a question plus schema context into one SELECT statement.
type Generator struct {
	Chat    llm.ChatClient
	Dialect string
}

// Input carries everything the model should see. PreviousSQL and
// PreviousError are set on repair attempts after a failed execution.
type Input struct {
	Question      string
	Contexts      []schema.Context
	Matches       []nouns.Match
	RowLimit      int
	PreviousSQL   string
	PreviousError string
}

func (g *Generator) Generate(ctx context.Context, input Input) (string, error) {
	if strings.TrimSpace(input.Question) == "" {
		return "", fmt.Errorf("question is required")
	}
	if len(input.Contexts) == 0 {
		return "", fmt.Errorf("at least one table context is required")
	}

	messages := []llm.Message{
		{Role: "system", Content: g.systemPrompt(input.RowLimit)},
		{Role: "user", Content: buildUserPrompt(input)},
	}
	if input.PreviousSQL != "" && input.PreviousError != "" {
		messages = append(messages, llm.Message{
			Role: "user",
			Content: fmt.Sprintf(
				"The previous query failed.\nQuery:\n%s\nError: %s\nWrite a corrected query.",
				input.PreviousSQL, input.PreviousError),
		})
	}

	resp, err := g.Chat.Complete(ctx, llm.ChatRequest{Messages: messages})
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}

	sqlText := StripMarkdown(resp.Content)
	if sqlText == "" {
		return "", fmt.Errorf("model returned no sql")
	}
	return sqlText, nil
}

func (g *Generator) systemPrompt(rowLimit int) string {
	dialect := g.Dialect
	if dialect == "" {
		dialect = "ANSI SQL"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "You write %s queries that answer analytics questions.\n", dialect)
	sb.WriteString("Rules:\n")
	sb.WriteString("- Output exactly one SELECT statement and nothing else.\n")
	sb.WriteString("- Never modify data. No INSERT, UPDATE, DELETE or DDL.\n")
	sb.WriteString("- Only use tables and columns from the provided context.\n")
	if rowLimit > 0 {
		fmt.Fprintf(&sb, "- Unless the question asks otherwise, limit output to %d rows.\n", rowLimit)
	}
	sb.WriteString("- When a value hint matches the question, filter with the hinted spelling.")
	return sb.String()
}

func buildUserPrompt(input Input) string {
	var sb strings.Builder
	sb.WriteString("Tables:\n")
	for _, tableContext := range input.Contexts {
		fmt.Fprintf(&sb, "Table %s\n", tableContext.TableName)
		fmt.Fprintf(&sb, "  Columns: %s\n", strings.Join(tableContext.Columns, ", "))
		for _, row := range tableContext.SampleRows {
			encoded, err := json.Marshal(row)
			if err != nil {
				continue
			}
			fmt.Fprintf(&sb, "  Sample: %s\n", encoded)
		}
	}
	if len(input.Matches) > 0 {
		sb.WriteString("\nValue hints (exact spellings found in the database):\n")
		for _, match := range input.Matches {
			fmt.Fprintf(&sb, "- %s.%s = %q\n", match.Table, match.Column, match.Value)
		}
	}
	fmt.Fprintf(&sb, "\nQuestion: %s", input.Question)
	return sb.String()
}

// StripMarkdown removes code fences models like to wrap SQL in.
func StripMarkdown(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.Index(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	return strings.TrimSpace(trimmed)
}
