// Package validation provides input validation for configuration and
// request types.
//
// Struct tag validation covers declarative field rules:
//
//	type ProviderConfig struct {
//	    Type    string `validate:"required,oneof=claude openai"`
//	    BaseURL string `validate:"omitempty,url"`
//	}
//	err := validation.Validate(cfg)
//
// The programmatic Validator covers rules that don't fit tags, collecting
// every failure into a single error:
//
//	v := validation.New().
//	    Required("api_key", cfg.APIKey).
//	    Range("max_tokens", cfg.MaxTokens, 1, 8192)
//	if err := v.Validate(); err != nil {
//	    return err
//	}
//
// Both paths return an *errors.AppError with per-field details.
package validation
