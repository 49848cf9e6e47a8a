// Package dispatch turns ledger decisions into generation requests and runs
// them.
//
// The Planner derives a request graph from the decisions of a run: a script,
// a voiceover that reads it, a keyframe and a video segment per segment, and
// a thumbnail. The Dispatcher validates the graph, checks that every
// capability has a provider chain, and executes the requests level by level
// with bounded concurrency. Artifacts of finished requests are passed to
// their dependents.
//
// The Dispatcher never retries. Every request is handed to an Executor,
// normally a resilience.Wrapper, which owns recovery and always returns a
// terminal result.
package dispatch
