// Package event provides a synchronous pub-sub bus that reports run progress
// in montage.
//
// The negotiation coordinator, the decision ledger and the resilience wrapper
// publish events; the CLI and the HTTP server subscribe to them for progress
// output and logging. Publishers never depend on subscribers.
//
// # Event Categories
//
// Run lifecycle:
//   - [RunStartedEvent]: a mission was analyzed
//   - [RunCompletedEvent]: a run finished
//
// Negotiation:
//   - [NegotiationRoundEvent]: one discussion round was scored
//   - [NegotiationResolvedEvent]: a topic has a consensus result
//
// Ledger:
//   - [LedgerAppendedEvent]: a decision was recorded
//
// Generation:
//   - [GenerationAttemptEvent]: one provider call returned
//   - [GenerationCompletedEvent]: a request reached its terminal status
//
// # Subscriptions
//
// Subscribe accepts an exact type, a category pattern such as "generation.*",
// or "*" for everything:
//
//	bus := event.NewBus()
//	bus.Subscribe("generation.*", func(e event.Event) {
//	    fmt.Println(e.EventType())
//	})
//
// Handlers run synchronously on the publishing goroutine. A panicking handler
// is recovered and logged.
package event
