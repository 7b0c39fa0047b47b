// Package httpclient provides a configurable HTTP client with built-in
// authentication and TLS support, used by llm providers that speak plain
// REST APIs.
//
// The client does a single attempt per call and returns classified errors
// (*Error) that carry the HTTP status code and any Retry-After hint.
// Retries, rate limiting, and circuit breaking are composed on top via the
// resilience package.
//
// # Basic Usage
//
//	client, err := httpclient.New(httpclient.Config{
//	    BaseURL: "https://api.example.com",
//	    Timeout: 30 * time.Second,
//	    Auth:    httpclient.BearerAuth("my-token"),
//	})
//
//	resp, err := client.Do(ctx, httpclient.Request{
//	    Method: http.MethodGet,
//	    Path:   "/users/123",
//	})
//
// # Typed JSON Responses
//
//	user, err := httpclient.DoJSON[User](ctx, client, httpclient.Request{
//	    Method: http.MethodGet,
//	    Path:   "/users/123",
//	})
package httpclient
