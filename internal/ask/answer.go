package ask

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sqlscout/sqlscout/internal/llm"
	"github.com/sqlscout/sqlscout/internal/query"
)

// answerRowCap bounds how many result rows are shown to the model when
// phrasing an answer.
const answerRowCap = 50

const answerSystemPrompt = `You summarize SQL query results as a short natural-language answer.
Only state what the rows support. If the result is empty, say so.`

func (s *Service) phraseAnswer(ctx context.Context, question, sqlText string, result query.Result) (string, error) {
	rows := result.Rows
	truncated := false
	if len(rows) > answerRowCap {
		rows = rows[:answerRowCap]
		truncated = true
	}

	payload, err := json.Marshal(map[string]any{
		"columns": result.Columns,
		"rows":    rows,
	})
	if err != nil {
		return "", fmt.Errorf("marshal result for answer: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n", question)
	fmt.Fprintf(&sb, "SQL: %s\n", sqlText)
	fmt.Fprintf(&sb, "Result: %s", payload)
	if truncated {
		fmt.Fprintf(&sb, "\n(The result was truncated to the first %d of %d rows.)", answerRowCap, len(result.Rows))
	}

	resp, err := s.Chat.Complete(ctx, llm.ChatRequest{Messages: []llm.Message{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: sb.String()},
	}})
	if err != nil {
		return "", fmt.Errorf("phrase answer: %w", err)
	}

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", fmt.Errorf("model returned an empty answer")
	}
	return answer, nil
}
