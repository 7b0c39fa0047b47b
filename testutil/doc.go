// Package testutil provides test doubles and helpers for code that
// depends on llmkit.
//
// StubClient is a scriptable llm.Client for exercising resilience
// policies, middleware, and application logic without a real provider:
//
//	stub := testutil.NewStubClient("stub").
//	    RespondWith("hello")
//	rc, _ := llm.NewResilientClient(stub, llm.ResilientConfig{})
//
// Eventually polls a condition until it holds or a deadline passes,
// for asserting on asynchronous state like circuit breaker recovery:
//
//	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
//	    return breaker.State() == resilience.StateClosed
//	})
package testutil
