package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"LinkPilot/internal/domain"
	"LinkPilot/internal/ports"
)

// Finder captures a single trend-discovery strategy (AI search, HTML
// listing, etc.).
type Finder interface {
	Name() string
	Find(ctx context.Context, target domain.DiscoveryTarget) (*domain.TrendReport, error)
}

// Registry keeps a mapping from finder names to their implementations.
type Registry struct {
	finders map[string]Finder
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{finders: map[string]Finder{}}
}

// Register adds or replaces a finder implementation.
func (r *Registry) Register(finder Finder) {
	if r.finders == nil {
		r.finders = map[string]Finder{}
	}
	r.finders[finder.Name()] = finder
}

// Resolve returns a finder by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Finder, error) {
	if finder, ok := r.finders[name]; ok {
		return finder, nil
	}
	return nil, fmt.Errorf("finder %s is not registered", name)
}

// Source implements ports.TrendSource via registered finder strategies.
type Source struct {
	registry *Registry
	logger   *slog.Logger
}

var _ ports.TrendSource = (*Source)(nil)

// NewSource wires the finder registry.
func NewSource(reg *Registry, log *slog.Logger) *Source {
	return &Source{registry: reg, logger: log}
}

// Find resolves the target's finder strategy and executes it.
func (s *Source) Find(ctx context.Context, target domain.DiscoveryTarget) (*domain.TrendReport, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("finder registry is not configured")
	}

	finder, err := s.registry.Resolve(target.Finder)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", target.Query, err)
	}

	s.debug("discover target", "finder", target.Finder, "query", target.Query, "category", target.Category)

	report, err := finder.Find(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("finder %s: %w", target.Finder, err)
	}

	return report, nil
}

func (s *Source) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
