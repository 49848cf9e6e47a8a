package provider_test

import (
	"testing"

	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/provider"
	"github.com/Iron-Ham/montage/internal/testutil"
)

func newRegistry(t *testing.T, ids ...string) *provider.Registry {
	t.Helper()
	reg := provider.NewRegistry()
	for _, id := range ids {
		if err := reg.Register(testutil.NewScriptedAdapter(id)); err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
	}
	return reg
}

func TestRegistry_Register(t *testing.T) {
	reg := newRegistry(t, "a")

	if err := reg.Register(testutil.NewScriptedAdapter("a")); !errors.IsConfiguration(err) {
		t.Errorf("duplicate Register() error = %v, want configuration error", err)
	}
	if err := reg.Register(testutil.NewScriptedAdapter("")); err == nil {
		t.Error("Register() accepted adapter without id")
	}
	if _, ok := reg.Adapter("a"); !ok {
		t.Error("Adapter(a) not found")
	}
}

func TestRegistry_Chain(t *testing.T) {
	reg := newRegistry(t, "primary", "backup")
	if err := reg.SetChain(provider.Video, "primary", "backup"); err != nil {
		t.Fatalf("SetChain() error = %v", err)
	}

	chain, err := reg.Chain(provider.Video)
	if err != nil {
		t.Fatalf("Chain() error = %v", err)
	}
	if len(chain) != 2 || chain[0].ID() != "primary" || chain[1].ID() != "backup" {
		t.Errorf("Chain() = %v", chain)
	}
	if !reg.Has(provider.Video) || reg.Has(provider.Speech) {
		t.Error("Has() disagrees with configured chains")
	}
}

func TestRegistry_MissingChain(t *testing.T) {
	reg := newRegistry(t, "a")

	_, err := reg.Chain(provider.Speech)
	if !errors.IsConfiguration(err) {
		t.Fatalf("Chain() error = %v, want configuration error", err)
	}
	if !errors.Is(err, errors.ErrNoProvider) {
		t.Errorf("error %v does not wrap ErrNoProvider", err)
	}
	var ce *errors.ConfigurationError
	if errors.As(err, &ce) && ce.Key != "providers.chains.speech" {
		t.Errorf("Key = %q", ce.Key)
	}
}

func TestRegistry_SetChainErrors(t *testing.T) {
	reg := newRegistry(t, "a")

	tests := []struct {
		name  string
		c     provider.Capability
		names []string
	}{
		{"unknown capability", "smell", []string{"a"}},
		{"unregistered adapter", provider.Text, []string{"a", "ghost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := reg.SetChain(tt.c, tt.names...); !errors.IsConfiguration(err) {
				t.Errorf("SetChain() error = %v, want configuration error", err)
			}
		})
	}

	if err := reg.SetChain(provider.Text, "a"); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetChain(provider.Text); err != nil {
		t.Fatal(err)
	}
	if reg.Has(provider.Text) {
		t.Error("empty SetChain() did not remove the chain")
	}
}

func TestRegistry_Describe(t *testing.T) {
	reg := newRegistry(t, "a", "b", "c")
	_ = reg.SetChain(provider.Image, "c")
	_ = reg.SetChain(provider.Text, "a", "b")

	if got, want := reg.Describe(), "text: a > b; image: c"; got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}
