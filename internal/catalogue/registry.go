package catalogue

import (
	"strings"

	"github.com/nrms/data-bridge/pkg/apperr"
)

// Registry holds the validated, load-time-immutable set of dataset
// definitions, shared by the catalogue (enumeration) and the query
// facade (collection-name validation).
type Registry struct {
	byName map[string]DatasetDefinition
	order  []string
}

// NewRegistry validates and loads definitions. A ConfigError is
// returned for any structurally invalid definition: every definition
// must name at least one primary-key header, a change-type header, and
// a non-empty file prefix format with exactly one "{date}" slot.
func NewRegistry(defs []DatasetDefinition) (*Registry, error) {
	r := &Registry{byName: make(map[string]DatasetDefinition, len(defs))}

	for _, d := range defs {
		if d.Name == "" {
			return nil, apperr.New(apperr.KindConfig, "catalogue", "NewRegistry", "dataset definition missing name")
		}
		if len(d.PrimaryKeyHeaders) == 0 {
			return nil, apperr.New(apperr.KindConfig, "catalogue", "NewRegistry",
				"dataset "+d.Name+" has no primary_key_headers")
		}
		if d.ChangeTypeHeader == "" {
			return nil, apperr.New(apperr.KindConfig, "catalogue", "NewRegistry",
				"dataset "+d.Name+" has no change_type_header")
		}
		if strings.Count(d.FilePrefixFormat, "{date}") != 1 {
			return nil, apperr.New(apperr.KindConfig, "catalogue", "NewRegistry",
				"dataset "+d.Name+" file_prefix_format must contain exactly one {date} slot")
		}

		lower := strings.ToLower(d.Name)
		if _, exists := r.byName[lower]; exists {
			return nil, apperr.New(apperr.KindConfig, "catalogue", "NewRegistry", "duplicate dataset name "+d.Name)
		}

		r.byName[lower] = d
		r.order = append(r.order, lower)
	}

	return r, nil
}

// All returns every definition in load order.
func (r *Registry) All() []DatasetDefinition {
	defs := make([]DatasetDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.byName[name])
	}

	return defs
}

// Lookup finds a definition by name, case-insensitively.
func (r *Registry) Lookup(name string) (DatasetDefinition, bool) {
	d, ok := r.byName[strings.ToLower(name)]

	return d, ok
}
