package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clearstate-inc/recon-engine/pkg/config"
	"github.com/clearstate-inc/recon-engine/pkg/database"
)

// CapabilityDescriptor is the immutable map of optional features available in
// the current deployment, computed once at startup and injected into the rule
// engine. Rules never probe the data layout at evaluation time.
type CapabilityDescriptor struct {
	available map[string]bool
	defaults  map[string]string
}

// Has reports whether the named optional feature is present.
func (d *CapabilityDescriptor) Has(feature string) bool {
	return d.available[feature]
}

// DefaultFor returns the configured substitute value for an absent feature.
func (d *CapabilityDescriptor) DefaultFor(feature string) (string, bool) {
	v, ok := d.defaults[feature]
	return v, ok
}

// Features returns the names of all declared optional features.
func (d *CapabilityDescriptor) Features() []string {
	names := make([]string, 0, len(d.available))
	for name := range d.available {
		names = append(names, name)
	}
	return names
}

// SchemaGuard probes the live data layout for declared optional tables and
// columns. A rule referencing an absent feature degrades to SKIP with the
// configured default instead of failing the run.
type SchemaGuard interface {
	// Describe probes each declared feature once and returns the descriptor.
	Describe(ctx context.Context) (*CapabilityDescriptor, error)
}

type schemaGuard struct {
	features []config.OptionalFeature
	logger   *zap.Logger
}

// NewSchemaGuard creates a SchemaGuard for the declared optional features.
func NewSchemaGuard(features []config.OptionalFeature, logger *zap.Logger) SchemaGuard {
	return &schemaGuard{features: features, logger: logger}
}

var _ SchemaGuard = (*schemaGuard)(nil)

func (g *schemaGuard) Describe(ctx context.Context) (*CapabilityDescriptor, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	desc := &CapabilityDescriptor{
		available: make(map[string]bool, len(g.features)),
		defaults:  make(map[string]string),
	}

	for _, f := range g.features {
		var present bool
		var err error
		if f.Column == "" {
			err = q.QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM information_schema.tables
					WHERE table_schema = 'public' AND table_name = $1
				)`, f.Table).Scan(&present)
		} else {
			err = q.QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM information_schema.columns
					WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2
				)`, f.Table, f.Column).Scan(&present)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to probe feature %q: %w", f.Name, err)
		}

		desc.available[f.Name] = present
		if f.Default != "" {
			desc.defaults[f.Name] = f.Default
		}
		if !present {
			g.logger.Info("optional feature absent, rules requiring it will be skipped",
				zap.String("feature", f.Name),
				zap.String("table", f.Table),
				zap.String("column", f.Column))
		}
	}

	return desc, nil
}

// StaticCapabilities builds a descriptor from a fixed map, for callers that
// know the layout up front (and for tests).
func StaticCapabilities(available map[string]bool, defaults map[string]string) *CapabilityDescriptor {
	if available == nil {
		available = map[string]bool{}
	}
	if defaults == nil {
		defaults = map[string]string{}
	}
	return &CapabilityDescriptor{available: available, defaults: defaults}
}
