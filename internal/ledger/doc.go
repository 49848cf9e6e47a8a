// Package ledger holds the append-only, provenance-tracked record of every
// decision made during a run.
//
// A [Decision] carries the value chosen for a topic together with its
// [Source] (RULE, NEGOTIATION or DEFAULT), a confidence and a human-readable
// rationale. The [Ledger] validates every decision on append and never
// mutates or removes entries. Appending a decision whose topic and timestamp
// are already present is a no-op, which makes appends idempotent under retry.
//
// One Ledger belongs to one run. Downstream collaborators receive a [View]
// and cannot append.
//
//	l := ledger.New(ledger.WithBus(bus))
//	if _, err := l.Append(ledger.Rule("aspect_ratio", "9:16", "tiktok is vertical")); err != nil {
//	    return err
//	}
//	d, ok := l.Latest("aspect_ratio")
package ledger
