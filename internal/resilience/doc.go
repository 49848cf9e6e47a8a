// Package resilience executes provider calls so that every request ends in
// exactly one terminal result.
//
// A Wrapper walks the fallback chain configured for a request's capability.
// Failures are handled by kind:
//
//   - RETRYABLE: retried on the same provider with exponential backoff, up to
//     the configured attempt budget.
//   - POLICY: the payload is rewritten by a Remediator, up to the request's
//     remediation budget. Once that is spent, the request switches once to a
//     safe generic payload, and then the chain advances.
//   - UNAVAILABLE and TERMINAL: the chain advances immediately.
//
// When every provider in the chain has been tried, a placeholder artifact is
// returned with status DEGRADED. FAILED_TERMINAL is reserved for
// configuration errors such as a capability with no chain, and CANCELED for
// requests interrupted by their context.
//
// Basic usage:
//
//	w := resilience.NewWrapper(registry,
//		resilience.WithConfig(cfg.Resilience),
//		resilience.WithRemediator(resilience.NewTextRemediator(textAdapter)),
//		resilience.WithLogger(logger),
//	)
//	res := w.Execute(ctx, resilience.Request{ID: "voiceover", Call: call})
//	if !res.OK() {
//		return res.Err
//	}
package resilience
