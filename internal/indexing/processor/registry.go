package processor

import (
	"fmt"
	"sort"

	"github.com/vietddude/replayer/internal/infra/storage"
)

// Deps are the stores available to processor factories.
type Deps struct {
	Markers   storage.MarkerRepository
	Snapshots storage.SnapshotRepository
}

// Factory builds a processor from its dependencies.
type Factory func(deps Deps) (Processor, error)

var factories = map[string]Factory{
	SnapshotProcessorName: func(deps Deps) (Processor, error) {
		if deps.Snapshots == nil {
			return nil, fmt.Errorf("snapshot processor requires a snapshot repository")
		}
		return NewSnapshotProcessor(deps.Snapshots, deps.Markers), nil
	},
	PassthroughProcessorName: func(deps Deps) (Processor, error) {
		return NewPassthroughProcessor(deps.Markers), nil
	},
}

// Available returns the registered processor names, sorted.
func Available() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates processors by name, preserving order.
func Build(names []string, deps Deps) ([]Processor, error) {
	out := make([]Processor, 0, len(names))
	for _, name := range names {
		factory, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("unknown processor %q (available: %v)", name, Available())
		}
		p, err := factory(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to build processor %s: %w", name, err)
		}
		out = append(out, p)
	}
	return out, nil
}
