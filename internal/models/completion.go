package models

// CompletionRequest is the wire shape sent to the completion service
type CompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []PromptMessage `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

// CompletionUsage mirrors the provider's usage block
type CompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResult is the single well-typed shape the rest of the
// pipeline consumes. Provider responses expose text under different
// optional fields; the service adapter resolves them once into this.
type CompletionResult struct {
	Text  string
	Model string
	Usage CompletionUsage
}
