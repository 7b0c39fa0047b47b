// Package observability provides OpenTelemetry tracing and metrics
// integration for llmkit.
//
// Tracing:
//
//	cfg := observability.DefaultTracerConfig("my-app")
//	tp, err := observability.InitTracer(ctx, &cfg)
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanLLMCall)
//	defer span.End()
//
// Metrics:
//
//	metrics, err := observability.NewResilienceMetrics(observability.Meter("my-app"))
//
// The resilience instruments plug into the resilience package through its
// callback hooks:
//
//	limiterCfg.OnLimit = metrics.OnLimit(ctx)
//	breakerCfg.OnStateChange = metrics.OnStateChange(ctx)
//	retryCfg.OnRetry = metrics.OnRetry(ctx, "complete")
//
// Health checks aggregate per-component checks, worst status wins:
//
//	registry := observability.NewHealthRegistry("my-app", "1.0.0")
//	registry.Register(llm.HealthCheck(client))
//	health := registry.Check(ctx)
package observability
