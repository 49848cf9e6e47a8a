package pipeline

import (
	"fmt"
	"slices"
	"sort"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/logging"
	"github.com/Iron-Ham/montage/internal/provider"
	"github.com/Iron-Ham/montage/internal/provider/httpapi"
	"github.com/Iron-Ham/montage/internal/provider/simulated"
	"github.com/Iron-Ham/montage/internal/provider/synthetic"
)

// BuildRegistry constructs every adapter named in the providers section and
// wires the configured fallback chains.
func BuildRegistry(cfg *config.Config, logger *logging.Logger) (*provider.Registry, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	pc := cfg.Providers

	names := referencedAdapters(pc)
	reg := provider.NewRegistry()
	for _, name := range names {
		a, err := newAdapter(name, pc, logger)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}

	capabilities := make([]string, 0, len(pc.Chains))
	for c := range pc.Chains {
		capabilities = append(capabilities, c)
	}
	sort.Strings(capabilities)
	for _, c := range capabilities {
		if err := reg.SetChain(provider.Capability(c), pc.Chains[c]...); err != nil {
			return nil, err
		}
	}

	logger.Debug("provider registry built", "adapters", names, "chains", reg.Describe())
	return reg, nil
}

// referencedAdapters returns the sorted, de-duplicated adapter names the
// providers section uses.
func referencedAdapters(pc config.ProvidersConfig) []string {
	var names []string
	for _, chain := range pc.Chains {
		names = append(names, chain...)
	}
	if pc.Remediator != "" {
		names = append(names, pc.Remediator)
	}
	if pc.Negotiator != "" {
		names = append(names, pc.Negotiator)
	}
	sort.Strings(names)
	return slices.Compact(names)
}

func newAdapter(name string, pc config.ProvidersConfig, logger *logging.Logger) (provider.Adapter, error) {
	switch name {
	case config.AdapterSimulated:
		return simulated.New(pc.Simulated, simulated.WithLogger(logger)), nil
	case config.AdapterSynthetic:
		return synthetic.New(), nil
	case config.AdapterHTTP:
		c, err := httpapi.New(pc.HTTP, httpapi.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, errors.NewConfigurationError(fmt.Sprintf("unknown adapter %q", name), nil).
		WithKey("providers")
}
