// Package provider defines the seam between montage and external generation
// backends.
//
// An [Adapter] exposes four capabilities (text, image, video and speech).
// Failures are reported as *errors.ProviderError tagged with a kind
// (retryable, policy, unavailable or terminal) that tells the execution
// layer how to recover. Adapters that implement only some capabilities embed
// [Unsupported].
//
// A [Registry] holds the adapters by name and an ordered fallback chain for
// each capability:
//
//	reg := provider.NewRegistry()
//	_ = reg.Register(primary)
//	_ = reg.Register(backup)
//	_ = reg.SetChain(provider.Video, primary.ID(), backup.ID())
//
// Implementations live in sub-packages: simulated (offline, with fault
// injection), httpapi (JSON over HTTP) and synthetic (placeholder artifacts
// that form the degradation floor).
package provider
