package llm

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages []Message
	// JSONMode asks the provider to constrain output to a JSON object.
	JSONMode bool
}

type ChatResponse struct {
	Content string
	Model   string
}

type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}
