// Package mission turns a free-form content request into the topics that
// need a decision.
//
// A [Request] (decoded from a mission file or an API body) becomes an
// immutable [Intent]. The [Analyzer] validates the intent, resolves the
// built-in rule topics (aspect ratio from the surface, segment count from
// the duration) and any explicit overrides as RULE decisions, and prepares
// each remaining [TopicSpec] as a [Topic] with its eligible personas and
// convergence threshold. Persona eligibility is decided by glob patterns
// matched against persona expertise tags.
package mission
