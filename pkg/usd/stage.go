package usd

import (
	"fmt"
	"sort"
	"strings"
)

// Specifier says how a prim spec was introduced.
type Specifier int

const (
	SpecifierDef   Specifier = iota // def: concrete prim
	SpecifierOver                   // over: opinion without definition
	SpecifierClass                  // class: abstract prim, never traversed
)

// String returns the keyword used in USDA.
func (s Specifier) String() string {
	switch s {
	case SpecifierDef:
		return "def"
	case SpecifierOver:
		return "over"
	case SpecifierClass:
		return "class"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// LayerMetadata holds the stage-level metadata of the root layer.
type LayerMetadata struct {
	DefaultPrim   string
	UpAxis        string
	MetersPerUnit float64
	Doc           string
	StartTimeCode float64
	EndTimeCode   float64
}

// Stage is an in-memory scene description: a tree of prims under a pseudo-root.
// A Stage is not safe for concurrent mutation; read-only use from several
// goroutines is fine.
type Stage struct {
	Metadata LayerMetadata

	root  *Prim
	prims map[Path]*Prim
}

// NewStage returns an empty stage holding only the pseudo-root.
func NewStage() *Stage {
	s := &Stage{
		Metadata: LayerMetadata{UpAxis: "Y", MetersPerUnit: 0.01},
		prims:    make(map[Path]*Prim),
	}
	s.root = &Prim{stage: s, path: RootPath}
	s.prims[RootPath] = s.root
	return s
}

// PseudoRoot returns the unnamed root of the prim hierarchy.
func (s *Stage) PseudoRoot() *Prim {
	return s.root
}

// PrimAtPath returns the prim at path, or nil when none exists.
func (s *Stage) PrimAtPath(path Path) *Prim {
	return s.prims[path]
}

// DefinePrim returns the prim at path, creating it and any missing ancestors.
// An empty typeName leaves an existing prim's type untouched.
func (s *Stage) DefinePrim(path Path, typeName string) *Prim {
	if p, ok := s.prims[path]; ok {
		if typeName != "" {
			p.typeName = typeName
		}
		return p
	}

	parent := s.DefinePrim(path.Parent(), "")
	p := &Prim{
		stage:    s,
		path:     path,
		typeName: typeName,
		parent:   parent,
	}
	parent.children = append(parent.children, p)
	s.prims[path] = p
	return p
}

// Traverse walks all traversable prims depth-first in authored order,
// excluding the pseudo-root. Returning false from fn skips the prim's subtree.
func (s *Stage) Traverse(fn func(*Prim) bool) {
	var walk func(*Prim)
	walk = func(p *Prim) {
		for _, c := range p.Children() {
			if fn(c) {
				walk(c)
			}
		}
	}
	walk(s.root)
}

// CountByType returns the number of traversable prims per type name.
// Typeless prims are counted under "".
func (s *Stage) CountByType() map[string]int {
	counts := make(map[string]int)
	s.Traverse(func(p *Prim) bool {
		counts[p.typeName]++
		return true
	})
	return counts
}

// Prim is one node of the stage hierarchy.
type Prim struct {
	stage     *Stage
	path      Path
	typeName  string
	specifier Specifier
	parent    *Prim
	children  []*Prim

	attrs     []*Attribute
	attrIndex map[string]*Attribute
	rels      []*Relationship
	relIndex  map[string]*Relationship
	metadata  map[string]any
}

// Stage returns the owning stage.
func (p *Prim) Stage() *Stage { return p.stage }

// Path returns the absolute prim path.
func (p *Prim) Path() Path { return p.path }

// Name returns the last path element.
func (p *Prim) Name() string { return p.path.Name() }

// TypeName returns the schema type, e.g. "Mesh". Empty for typeless prims.
func (p *Prim) TypeName() string { return p.typeName }

// Specifier returns how the prim was introduced.
func (p *Prim) Specifier() Specifier { return p.specifier }

// SetSpecifier changes how the prim was introduced.
func (p *Prim) SetSpecifier(s Specifier) { p.specifier = s }

// Parent returns the parent prim, or nil for the pseudo-root.
func (p *Prim) Parent() *Prim { return p.parent }

// IsPseudoRoot reports whether p is the stage's root.
func (p *Prim) IsPseudoRoot() bool { return p.path == RootPath }

// IsActive reports whether the prim is active. Prims are active unless
// authored with active = false.
func (p *Prim) IsActive() bool {
	if v, ok := p.metadata["active"].(bool); ok {
		return v
	}
	return true
}

// Children returns the traversable children in authored order: abstract
// (class) and inactive prims are left out.
func (p *Prim) Children() []*Prim {
	out := make([]*Prim, 0, len(p.children))
	for _, c := range p.children {
		if c.specifier == SpecifierClass || !c.IsActive() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// AllChildren returns every child spec, including abstract and inactive ones.
func (p *Prim) AllChildren() []*Prim {
	return p.children
}

// Attribute returns the named attribute, or nil when it is not authored.
func (p *Prim) Attribute(name string) *Attribute {
	return p.attrIndex[name]
}

// HasAttribute reports whether the named attribute is authored.
func (p *Prim) HasAttribute(name string) bool {
	_, ok := p.attrIndex[name]
	return ok
}

// Attributes returns all attributes in authored order.
func (p *Prim) Attributes() []*Attribute {
	return p.attrs
}

// Primvar returns the attribute "primvars:<name>", or nil.
func (p *Prim) Primvar(name string) *Attribute {
	return p.Attribute(PrimvarPrefix + name)
}

// Relationship returns the named relationship, or nil when it is not authored.
func (p *Prim) Relationship(name string) *Relationship {
	return p.relIndex[name]
}

// Property is an attribute or a relationship.
type Property interface {
	PropertyName() string
}

// Property returns the named attribute or relationship, or nil.
func (p *Prim) Property(name string) Property {
	if a := p.Attribute(name); a != nil {
		return a
	}
	if r := p.Relationship(name); r != nil {
		return r
	}
	return nil
}

// PropertyNames returns the names of all properties, sorted.
func (p *Prim) PropertyNames() []string {
	names := make([]string, 0, len(p.attrs)+len(p.rels))
	for _, a := range p.attrs {
		names = append(names, a.Name)
	}
	for _, r := range p.rels {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

// Metadata returns a prim metadata value.
func (p *Prim) Metadata(key string) (any, bool) {
	v, ok := p.metadata[key]
	return v, ok
}

// SetMetadata authors a prim metadata value.
func (p *Prim) SetMetadata(key string, value any) {
	if p.metadata == nil {
		p.metadata = make(map[string]any)
	}
	p.metadata[key] = value
}

// SetAttribute authors an attribute, replacing any previous spec with the same
// name. A nil value declares the attribute without a default.
func (p *Prim) SetAttribute(name, typeName string, value any) *Attribute {
	if a, ok := p.attrIndex[name]; ok {
		a.TypeName = typeName
		a.Value = value
		return a
	}
	a := &Attribute{Name: name, TypeName: typeName, Value: value}
	if p.attrIndex == nil {
		p.attrIndex = make(map[string]*Attribute)
	}
	p.attrs = append(p.attrs, a)
	p.attrIndex[name] = a
	return a
}

// SetRelationship authors a relationship. Relative targets are resolved
// against the prim's own path.
func (p *Prim) SetRelationship(name string, targets ...Path) *Relationship {
	resolved := make([]Path, len(targets))
	for i, t := range targets {
		resolved[i] = p.path.Resolve(t)
	}
	if r, ok := p.relIndex[name]; ok {
		r.Targets = resolved
		return r
	}
	r := &Relationship{Name: name, Targets: resolved}
	if p.relIndex == nil {
		p.relIndex = make(map[string]*Relationship)
	}
	p.rels = append(p.rels, r)
	p.relIndex[name] = r
	return r
}

// String returns a short description for logs.
func (p *Prim) String() string {
	if p.typeName == "" {
		return string(p.path)
	}
	return fmt.Sprintf("%s (%s)", p.path, p.typeName)
}

// Attribute is a typed, possibly valueless, property of a prim.
type Attribute struct {
	Name     string
	TypeName string // e.g. "point3f[]"
	Value    any    // nil when declared without a default
	Custom   bool
	Uniform  bool
	Meta     map[string]any
}

// PropertyName returns the attribute name.
func (a *Attribute) PropertyName() string { return a.Name }

// IsArray reports whether the declared type is an array type.
func (a *Attribute) IsArray() bool {
	return strings.HasSuffix(a.TypeName, "[]")
}

// Metadata returns an attribute metadata value.
func (a *Attribute) Metadata(key string) (any, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a.Meta[key]
	return v, ok
}

// SetMetadata authors an attribute metadata value.
func (a *Attribute) SetMetadata(key string, value any) *Attribute {
	if a.Meta == nil {
		a.Meta = make(map[string]any)
	}
	a.Meta[key] = value
	return a
}

// Relationship is a list of target paths.
type Relationship struct {
	Name    string
	Targets []Path
}

// PropertyName returns the relationship name.
func (r *Relationship) PropertyName() string { return r.Name }
