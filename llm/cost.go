package llm

// CostFunc estimates the token-bucket cost of a completion request.
// Vendors with better token accounting can supply their own.
type CostFunc func(req CompletionRequest) int

// RequestCost estimates how many rate-limit tokens a request should cost:
// a base of 1, plus one per thousand estimated prompt tokens (about four
// characters each), plus one per thousand requested completion tokens.
// The estimate grows monotonically with payload size and MaxTokens.
func RequestCost(req CompletionRequest) int {
	chars := len(req.SystemPrompt)
	for _, m := range req.Messages {
		chars += len(m.Content)
	}

	promptTokens := chars / 4
	cost := 1 + ceilDiv(promptTokens, 1000) + ceilDiv(req.MaxTokens, 1000)
	return cost
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
