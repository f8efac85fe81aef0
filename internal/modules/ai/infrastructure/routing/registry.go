package routing

import (
	"fmt"

	"SecAssist/internal/modules/ai/domain/intent"
)

const DefaultMaxHandlers = 3

// Registry immutable intent -> handler table built once at startup.
// Lookups need no locking.
type Registry struct {
	descs       []intent.HandlerDescriptor
	primary     map[intent.Tag]int
	maxHandlers int
}

// NewRegistry the first descriptor serving a tag becomes its primary handler.
func NewRegistry(maxHandlers int, descs ...intent.HandlerDescriptor) (*Registry, error) {
	if maxHandlers <= 0 {
		maxHandlers = DefaultMaxHandlers
	}
	r := &Registry{
		descs:       make([]intent.HandlerDescriptor, 0, len(descs)),
		primary:     make(map[intent.Tag]int),
		maxHandlers: maxHandlers,
	}
	names := make(map[string]struct{}, len(descs))
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("handler descriptor without name")
		}
		if _, dup := names[d.Name]; dup {
			return nil, fmt.Errorf("duplicate handler %s", d.Name)
		}
		names[d.Name] = struct{}{}
		r.descs = append(r.descs, d)
		for _, t := range d.Tags {
			if _, ok := r.primary[t]; !ok {
				r.primary[t] = len(r.descs) - 1
			}
		}
	}
	return r, nil
}

func (r *Registry) MaxHandlers() int {
	return r.maxHandlers
}

// Select primary handler for the intent tag, then handlers whose markers appear
// in the entities, in registration order, at most MaxHandlers in total.
// General (or an unserved tag) selects nothing: the caller falls back to direct generation.
func (r *Registry) Select(in intent.Intent) []intent.HandlerDescriptor {
	if in.Tag == intent.TagGeneral {
		return []intent.HandlerDescriptor{}
	}
	pi, ok := r.primary[in.Tag]
	if !ok {
		return []intent.HandlerDescriptor{}
	}

	out := make([]intent.HandlerDescriptor, 0, r.maxHandlers)
	out = append(out, r.descs[pi])
	for i, d := range r.descs {
		if len(out) >= r.maxHandlers {
			break
		}
		if i == pi {
			continue
		}
		for _, e := range in.Entities {
			if d.Recognizes(e) {
				out = append(out, d)
				break
			}
		}
	}
	return out
}
