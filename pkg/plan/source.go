package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source loads the plan catalog. Implementations must return an immutable
// snapshot; the catalog is loaded once at startup and never mutated.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// Catalog is a validated, read-only set of plans keyed by plan ID.
type Catalog struct {
	plans map[string]Plan
}

// NewCatalog loads plans from the source and validates them.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("plan: Source is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validate(plans); err != nil {
		return nil, err
	}

	return &Catalog{plans: plans}, nil
}

// Get returns the plan with the given ID.
func (c *Catalog) Get(id string) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// Has reports whether a plan with the given ID exists.
func (c *Catalog) Has(id string) bool {
	_, ok := c.plans[id]
	return ok
}

// Len returns the number of plans in the catalog.
func (c *Catalog) Len() int {
	return len(c.plans)
}

type staticSource struct {
	plans map[string]Plan
}

// NewStaticSource returns a Source backed by the given plans. Panics when no
// plans are provided so a misconfigured service fails at startup.
func NewStaticSource(plans ...Plan) Source {
	if len(plans) == 0 {
		panic("plan: at least one plan is required")
	}
	m := make(map[string]Plan, len(plans))
	for _, p := range plans {
		m[p.ID] = p
	}
	return &staticSource{plans: m}
}

func (s *staticSource) Load(_ context.Context) (map[string]Plan, error) {
	out := make(map[string]Plan, len(s.plans))
	for id, p := range s.plans {
		out[id] = p
	}
	return out, nil
}

type fileSource struct {
	path string
}

// NewFileSource returns a Source that reads the catalog from a JSON or YAML
// file, chosen by extension.
func NewFileSource(path string) Source {
	return &fileSource{path: path}
}

type catalogFile struct {
	Plans []Plan `json:"plans" yaml:"plans"`
}

func (s *fileSource) Load(_ context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", s.path, err)
	}

	var file catalogFile
	switch ext := strings.ToLower(filepath.Ext(s.path)); ext {
	case ".json":
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse catalog file %s: %w", s.path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse catalog file %s: %w", s.path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	plans := make(map[string]Plan, len(file.Plans))
	for _, p := range file.Plans {
		plans[p.ID] = p
	}
	return plans, nil
}

// validate catches catalog configuration mistakes at startup instead of
// surfacing them as provisioning failures later.
func validate(plans map[string]Plan) error {
	if len(plans) == 0 {
		return ErrNoPlans
	}
	for id, p := range plans {
		switch {
		case p.ID == "":
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %q has empty ID", id))
		case p.ID != id:
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", id, p.ID))
		case p.DurationDays <= 0:
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has non-positive duration: %d", id, p.DurationDays))
		case p.TrafficGB != Unlimited && p.TrafficGB <= 0:
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has invalid traffic limit: %d", id, p.TrafficGB))
		case p.DeviceLimit != Unlimited && p.DeviceLimit <= 0:
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has invalid device limit: %d", id, p.DeviceLimit))
		case p.TrialDays < 0:
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative trial days: %d", id, p.TrialDays))
		}
	}
	return nil
}
