package tasks

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/edgetask/internal/taskconfig"
)

var (
	ErrConstruction    = errors.New("tasks: runner construction failed")
	ErrFactoryExists   = errors.New("tasks: factory already registered")
	ErrFactoryNil      = errors.New("tasks: factory is nil")
	ErrInvalidMetadata = errors.New("tasks: invalid factory metadata")
	ErrNoFactory       = errors.New("tasks: no factory for kind")
)

type entry struct {
	meta    Metadata
	factory Factory
}

// Registry stores one factory per work kind.
type Registry struct {
	items map[taskconfig.Kind]entry
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[taskconfig.Kind]entry)}
}

// ValidateMetadata checks required metadata fields and id format.
func ValidateMetadata(meta Metadata) error {
	id := strings.TrimSpace(meta.ID)
	name := strings.TrimSpace(meta.Name)
	desc := strings.TrimSpace(meta.Description)
	if id == "" || name == "" || desc == "" {
		return fmt.Errorf("%w: id, name, and description are required", ErrInvalidMetadata)
	}
	if !isValidID(id) {
		return fmt.Errorf("%w: invalid id format %q", ErrInvalidMetadata, id)
	}
	return nil
}

func (r *Registry) Register(kind taskconfig.Kind, meta Metadata, f Factory) error {
	if f == nil {
		return ErrFactoryNil
	}
	if err := ValidateMetadata(meta); err != nil {
		return err
	}
	if _, ok := r.items[kind]; ok {
		return fmt.Errorf("%w: %s", ErrFactoryExists, kind)
	}
	r.items[kind] = entry{meta: meta, factory: f}
	return nil
}

func (r *Registry) Resolve(kind taskconfig.Kind) (Factory, bool) {
	e, ok := r.items[kind]
	return e.factory, ok
}

// Build resolves the factory for cfg.Kind and constructs the runner. Every
// failure wraps ErrConstruction.
func (r *Registry) Build(cfg taskconfig.Config, env Env) (Runner, error) {
	f, ok := r.Resolve(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrConstruction, ErrNoFactory, cfg.Kind)
	}
	runner, err := f(cfg, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConstruction, cfg.Kind, err)
	}
	if runner == nil {
		return nil, fmt.Errorf("%w: %s: factory returned no runner", ErrConstruction, cfg.Kind)
	}
	return runner, nil
}

// ListMetadata returns deterministic metadata ordering by id.
func (r *Registry) ListMetadata() []Metadata {
	list := make([]Metadata, 0, len(r.items))
	for _, e := range r.items {
		list = append(list, e.meta)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

func isValidID(id string) bool {
	if id == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if i == 0 || i == len(id)-1 {
			if isSep {
				return false
			}
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
