package toolrun

import (
	"math/rand"
	"time"

	"github.com/danmuck/edgetask/internal/taskconfig"
	"github.com/danmuck/edgetask/internal/tasks"
)

type style int

const (
	styleRun style = iota
	styleManaged
	styleChecked
)

// styles lists the kinds that differ from styleRun.
var styles = map[taskconfig.Kind]style{
	taskconfig.KindLibFuzzerReport:     styleManaged,
	taskconfig.KindGenericReport:       styleManaged,
	taskconfig.KindLibFuzzerFuzz:       styleChecked,
	taskconfig.KindLibFuzzerDotnetFuzz: styleChecked,
}

var descriptions = map[style]string{
	styleRun:     "runs the configured tool once",
	styleManaged: "runs the configured tool with retries and failure reporting",
	styleChecked: "verifies the fuzzer exists, then runs it",
}

// Register adds the default factory for every kind in the catalog.
func Register(reg *tasks.Registry, catalog *taskconfig.Catalog) error {
	for _, kind := range catalog.Kinds() {
		s := styles[kind]
		meta := tasks.Metadata{
			ID:          kind.EventType() + "." + idSuffix(kind),
			Name:        string(kind),
			Description: descriptions[s],
		}
		if err := reg.Register(kind, meta, factoryFor(s)); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry with defaults for every kind in catalog.
func NewRegistry(catalog *taskconfig.Catalog) (*tasks.Registry, error) {
	reg := tasks.NewRegistry()
	if err := Register(reg, catalog); err != nil {
		return nil, err
	}
	return reg, nil
}

// idSuffix keeps ids unique where two kinds share an event type.
func idSuffix(kind taskconfig.Kind) string {
	if kind == taskconfig.KindLibFuzzerDotnetFuzz {
		return "dotnet"
	}
	return "default"
}

// factoryFor returns the constructor for a runner style.
func factoryFor(s style) tasks.Factory {
	return func(cfg taskconfig.Config, env tasks.Env) (tasks.Runner, error) {
		r := newRunner(cfg, env)
		switch s {
		case styleManaged:
			attempts := env.Options.ManagedRunAttempts
			if attempts < 1 {
				attempts = 1
			}
			return &ManagedRunner{
				Runner:   r,
				attempts: attempts,
				rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
			}, nil
		case styleChecked:
			if err := requireTool(r.cmd.Name); err != nil {
				return nil, err
			}
		}
		return r, nil
	}
}
