// Package chaos injects faults into position sources for reconciliation drills.
package chaos

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"tradecore/internal/reconcile"
	"tradecore/internal/schema"
)

// ErrInjected is returned when a source call is failed on purpose.
var ErrInjected = errors.New("chaos: injected failure")

// Config controls fault injection. Rates are probabilities in [0,1].
type Config struct {
	Seed          int64         `json:"seed"`
	FailRate      float64       `json:"failRate"`
	DropRate      float64       `json:"dropRate"`
	DuplicateRate float64       `json:"duplicateRate"`
	MaxDelay      time.Duration `json:"maxDelay"`
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	for name, rate := range map[string]float64{"failRate": c.FailRate, "dropRate": c.DropRate, "duplicateRate": c.DuplicateRate} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("maxDelay must be >= 0")
	}
	return nil
}

// Enabled reports whether any fault is configured.
func (c Config) Enabled() bool {
	return c.FailRate > 0 || c.DropRate > 0 || c.DuplicateRate > 0 || c.MaxDelay > 0
}

// Engine applies chaos rules to position snapshots.
type Engine struct {
	cfg Config
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Wrap returns a source that passes src through the engine. A nil engine
// returns src unchanged.
func (e *Engine) Wrap(src reconcile.Source) reconcile.Source {
	if e == nil {
		return src
	}
	return reconcile.SourceFunc(func(ctx context.Context) (map[string]schema.Position, error) {
		if err := e.delay(ctx); err != nil {
			return nil, err
		}
		if e.roll(e.cfg.FailRate) {
			return nil, ErrInjected
		}
		positions, err := src.Positions(ctx)
		if err != nil {
			return nil, err
		}
		return e.Process(positions), nil
	})
}

// Process drops or doubles positions and returns a new map.
func (e *Engine) Process(positions map[string]schema.Position) map[string]schema.Position {
	out := make(map[string]schema.Position, len(positions))
	if e == nil {
		for sym, p := range positions {
			out[sym] = p
		}
		return out
	}
	for _, sym := range sortedSymbols(positions) {
		p := positions[sym]
		if e.roll(e.cfg.DropRate) {
			continue
		}
		if e.roll(e.cfg.DuplicateRate) {
			p.Quantity *= 2
		}
		out[sym] = p
	}
	return out
}

func (e *Engine) roll(rate float64) bool {
	if rate <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64() < rate
}

func (e *Engine) delay(ctx context.Context) error {
	if e.cfg.MaxDelay <= 0 {
		return nil
	}
	e.mu.Lock()
	d := time.Duration(e.rng.Int63n(e.cfg.MaxDelay.Nanoseconds() + 1))
	e.mu.Unlock()
	if d == 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
