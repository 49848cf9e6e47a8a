package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"

	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/provider"
	"github.com/Iron-Ham/montage/internal/resilience"
	"github.com/Iron-Ham/montage/internal/util"
)

// Request is one unit of generation work derived from the ledger.
type Request struct {
	ID         string              `json:"id"`
	Capability provider.Capability `json:"capability"`
	Prompt     string              `json:"prompt"`
	Params     map[string]string   `json:"params,omitempty"`
	DependsOn  []string            `json:"depends_on,omitempty"`
	// Topics names the decisions the request was built from.
	Topics         []string `json:"topics,omitempty"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// resilient converts r into a resilience request.
func (r Request) resilient() resilience.Request {
	return resilience.Request{
		ID:             r.ID,
		IdempotencyKey: r.IdempotencyKey,
		Call: provider.Call{
			Capability: r.Capability,
			Prompt:     r.Prompt,
			Params:     maps.Clone(r.Params),
		},
	}
}

// IdempotencyKey derives the stable key of a request within a run. Providers
// that support idempotent submission receive it so that a resumed run does
// not pay twice.
func IdempotencyKey(runID, requestID, prompt string) string {
	h := sha256.New()
	for _, part := range []string{runID, requestID, prompt} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Validate checks request IDs, capabilities and dependencies, and returns the
// requests grouped into dependency levels.
func Validate(requests []Request) ([][]string, error) {
	ids := make([]string, 0, len(requests))
	byID := make(map[string]Request, len(requests))
	for i, r := range requests {
		field := fmt.Sprintf("requests[%d]", i)
		if r.ID == "" {
			return nil, errors.NewValidationError("request id cannot be empty").WithField(field + ".id")
		}
		if _, dup := byID[r.ID]; dup {
			return nil, errors.NewValidationError("duplicate request id").WithField(field + ".id").WithValue(r.ID)
		}
		if !r.Capability.Valid() {
			return nil, errors.NewValidationError("unknown capability").
				WithField(field + ".capability").WithValue(string(r.Capability))
		}
		ids = append(ids, r.ID)
		byID[r.ID] = r
	}
	for i, r := range requests {
		for _, dep := range r.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, errors.NewValidationError("unknown dependency").
					WithField(fmt.Sprintf("requests[%d].depends_on", i)).WithValue(dep)
			}
		}
	}

	levels, err := util.Levels(ids, func(id string) []string { return byID[id].DependsOn })
	if err != nil {
		return nil, errors.NewValidationError("request dependencies form a cycle").
			WithField("depends_on").WithValue(err.Error()).WithCause(errors.ErrDependencyCycle)
	}
	return levels, nil
}

// Report holds exactly one terminal result per dispatched request.
type Report struct {
	// Results are in request order.
	Results []resilience.Result `json:"results"`
	// ByKey indexes Results by idempotency key.
	ByKey map[string]resilience.Result `json:"-"`
}

func newReport(requests []Request, results map[string]resilience.Result) *Report {
	rep := &Report{
		Results: make([]resilience.Result, 0, len(requests)),
		ByKey:   make(map[string]resilience.Result, len(requests)),
	}
	for _, r := range requests {
		res := results[r.ID]
		rep.Results = append(rep.Results, res)
		rep.ByKey[res.IdempotencyKey] = res
	}
	return rep
}

// Result returns the result of a request by ID.
func (r *Report) Result(requestID string) (resilience.Result, bool) {
	i := slices.IndexFunc(r.Results, func(res resilience.Result) bool { return res.RequestID == requestID })
	if i < 0 {
		return resilience.Result{}, false
	}
	return r.Results[i], true
}

// Counts tallies results by status.
func (r *Report) Counts() map[resilience.Status]int {
	out := make(map[resilience.Status]int)
	for _, res := range r.Results {
		out[res.Status]++
	}
	return out
}
