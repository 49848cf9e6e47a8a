// Package negotiation resolves a topic through a bounded-round discussion
// among personas.
//
// Each round asks every eligible persona for a [Message] concurrently. A
// persona whose call fails, times out or panics abstains for that round.
// The round's score is the weight of personas that explicitly agree with the
// leading payload, divided by the weight of personas that responded. The
// topic converges once the score reaches its threshold with a strict
// majority of personas responding; otherwise the best round is returned
// after the last one.
//
// Messages come from a [MessageGenerator]:
//   - [ProviderGenerator] prompts a text provider and parses its reply
//   - [DeliberativeGenerator] is deterministic and needs no provider
//   - [GeneratorFunc] adapts a plain function, mostly for tests
//
// Usage:
//
//	coord := negotiation.NewCoordinator(negotiation.NewDeliberativeGenerator(2),
//		negotiation.WithConfig(cfg.Negotiation),
//		negotiation.WithBus(bus),
//	)
//	result, err := coord.Resolve(ctx, topic, intent, ledger.All())
//	decision := result.Decision(topic)
package negotiation
