package app

import (
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
)

// Factory builds the object backing an app instance.
type Factory func(svc Services) any

type Registration struct {
	// Config is a zero value of the integration's data struct, reflected
	// into a JSON schema for the admin UI.
	Config   any
	Factory  Factory
	TypeName string
	Title    string
}

type TypeInfo struct {
	TypeName     string       `json:"type_name"`
	Title        string       `json:"title"`
	Capabilities []Capability `json:"capabilities"`
}

type registered struct {
	Registration
	caps []Capability
}

// Registry maps type names to factories. It is populated at startup and
// read-only afterwards.
type Registry struct {
	entries map[string]registered
}

func NewRegistry(regs ...Registration) *Registry {
	r := &Registry{entries: make(map[string]registered)}
	for _, reg := range regs {
		r.Register(reg)
	}
	return r
}

// Register adds a factory. Registering a type twice panics.
func (r *Registry) Register(reg Registration) {
	if reg.TypeName == "" || reg.Factory == nil {
		panic("app: registration needs a type name and a factory")
	}
	if _, dup := r.entries[reg.TypeName]; dup {
		panic(fmt.Sprintf("app: type %q registered twice", reg.TypeName))
	}

	probe := reg.Factory(Services{})
	var caps []Capability
	for _, c := range AllCapabilities {
		if Supports(probe, c) {
			caps = append(caps, c)
		}
	}
	r.entries[reg.TypeName] = registered{Registration: reg, caps: caps}
}

func (r *Registry) Has(typeName string) bool {
	_, ok := r.entries[typeName]
	return ok
}

// Resolve builds the object for typeName. An unknown type fails with
// ErrUnknownType.
func (r *Registry) Resolve(typeName string, svc Services) (any, error) {
	reg, ok := r.entries[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
	return reg.Factory(svc), nil
}

func (r *Registry) Capabilities(typeName string) ([]Capability, error) {
	reg, ok := r.entries[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
	return append([]Capability(nil), reg.caps...), nil
}

// TypesSupporting lists the type names whose objects satisfy every capability.
func (r *Registry) TypesSupporting(caps ...Capability) []string {
	var names []string
	for name, reg := range r.entries {
		if hasAll(reg.caps, caps) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Types() []TypeInfo {
	infos := make([]TypeInfo, 0, len(r.entries))
	for _, reg := range r.entries {
		infos = append(infos, TypeInfo{
			TypeName:     reg.TypeName,
			Title:        reg.Title,
			Capabilities: append([]Capability{}, reg.caps...),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].TypeName < infos[j].TypeName })
	return infos
}

// ConfigSchema reflects the data struct of typeName into a JSON schema.
func (r *Registry) ConfigSchema(typeName string) (*jsonschema.Schema, error) {
	reg, ok := r.entries[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
	if reg.Config == nil {
		return nil, fmt.Errorf("%w: %q has no configuration", ErrCapabilityNotSupported, typeName)
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(reg.Config)
	schema.Title = reg.Title
	return schema, nil
}

func hasAll(have, want []Capability) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
