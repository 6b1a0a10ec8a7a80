// Package middleware provides the ordered layer chain a request passes
// through before it is routed to a page.
//
// A Layer receives the response, the request and a Next function. Calling
// next continues the chain, returning without calling it answers the request
// (the layer "handled" it), and returning an error ends the chain with a
// server error.
//
//	chain := middleware.NewChain()
//	chain.Use("defaults", middleware.Defaults("bigpipe"))
//	chain.Use("compiler", middleware.Compiler(src, middleware.StaticConfig{Prefix: "/dist/"}))
//	ran, err := chain.Run(w, r, dispatch)
//
// # Observability
//
// Metrics is both a Layer and the recorder the router and page controller
// report to:
//
//	m := middleware.NewMetrics(middleware.WithNamespace("news"))
//	chain.Use("metrics", m)
//	http.Handle("/metrics", promhttp.Handler())
//
// OpenTelemetry starts a server span per request and hands the span context
// to the rest of the chain through the request context.
package middleware
