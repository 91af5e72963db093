package strategy

import (
	"sort"

	"tradecore/internal/errors"
	"tradecore/pkg/exception"
)

// Strategy kinds selectable by configuration.
const (
	KindHold           = "hold"
	KindMACrossoverRSI = "ma_crossover_rsi"
)

// Config selects a strategy and carries its typed parameters.
type Config struct {
	Kind           string                `json:"kind"`
	MACrossoverRSI *MACrossoverRSIConfig `json:"maCrossoverRsi,omitempty"`
}

// Factory builds a strategy from configuration.
type Factory func(cfg Config) (Strategy, error)

// Registry maps strategy kinds to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories[KindHold] = func(Config) (Strategy, error) {
		return Hold{}, nil
	}
	r.factories[KindMACrossoverRSI] = func(cfg Config) (Strategy, error) {
		params := DefaultMACrossoverRSIConfig()
		if cfg.MACrossoverRSI != nil {
			params = *cfg.MACrossoverRSI
		}
		return NewMACrossoverRSI(params)
	}
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(kind string, factory Factory) error {
	if kind == "" || factory == nil {
		return exception.ErrInvalidArgument
	}
	r.factories[kind] = factory
	return nil
}

// New builds the strategy named by cfg.Kind.
func (r *Registry) New(cfg Config) (Strategy, error) {
	factory, ok := r.factories[cfg.Kind]
	if !ok {
		return nil, errors.Wrapf(exception.ErrUnknownStrategy, "kind %q", cfg.Kind)
	}
	return factory(cfg)
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// New builds a strategy from the built-in registry.
func New(cfg Config) (Strategy, error) {
	return NewRegistry().New(cfg)
}
