// Package pipeline runs a mission end to end.
//
// A run moves through fixed phases: analyzing → negotiating → planning →
// dispatching → done. The [mission.Analyzer] validates the intent and
// resolves rule topics. Persona panels negotiate the remaining topics level
// by level, and every decision is recorded in a per-run [ledger.Ledger].
// The dispatch planner turns the decisions into generation requests, which
// the dispatcher executes through a [resilience.Wrapper]. A run that stops
// early ends in the failed phase.
//
// Every run yields a [Report] holding the decisions, negotiation outcomes,
// requests, results and retry states. Stores persist it and the API and CLI
// render it.
//
// # Usage
//
//	p, err := pipeline.New(cfg,
//	    pipeline.WithBus(bus),
//	    pipeline.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	report, err := p.Run(ctx, mission.Request{
//	    Mission:         "Explain how vaccines train the immune system",
//	    DurationSeconds: 30,
//	    Surface:         "tiktok",
//	})
package pipeline
