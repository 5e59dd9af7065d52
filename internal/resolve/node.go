package resolve

// Node is a resolved schema. The set of implementations is closed; code
// walking the graph switches over all of them and treats anything else as
// a defect.
//
// Every node is a pointer, so node identity can key memo tables.
type Node interface {
	node()
}

// Any accepts every value.
type Any struct{}

// Never accepts no value.
type Never struct{}

// Leaf is a scalar type with its constraints copied from the document.
// Interpreting them (bounds, exclusivity forms) is left to the consumers.
type Leaf struct {
	// Type is one of integer, number, string, boolean, null.
	Type string
	// Implicit is set when the type was inferred from keywords rather than
	// declared; values of other kinds then pass untouched.
	Implicit bool

	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum any
	ExclusiveMaximum any
	Pattern          string
	Faker            string
}

type Array struct {
	Implicit    bool
	Items       Node
	MinItems    *int
	MaxItems    *int
	UniqueItems bool
}

type Property struct {
	Name   string
	Schema Node
}

type PatternProperty struct {
	Pattern string
	Schema  Node
}

// Dependency is one entry of the dependencies keyword: either a list of
// keys that must accompany Key, or a schema the whole object must satisfy
// when Key is present.
type Dependency struct {
	Key      string
	Requires []string
	Schema   Node
}

type Object struct {
	Implicit   bool
	Properties []Property
	Required   []string
	// Additional is nil when additionalProperties is absent; false resolves
	// to Never.
	Additional Node
	Patterns   []PatternProperty
	Depends    []Dependency
}

// Property returns the named property schema.
func (o *Object) Property(name string) (Node, bool) {
	for _, p := range o.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

func (o *Object) IsRequired(name string) bool {
	for _, r := range o.Required {
		if r == name {
			return true
		}
	}
	return false
}

type AnyOf struct {
	Of []Node
}

type OneOf struct {
	Of []Node
}

type AllOf struct {
	Of []Node
}

type Not struct {
	Schema Node
}

// Enum accepts exactly the listed values; const is an enum of one.
type Enum struct {
	Values []any
}

// Ref is a reference cell. Target is filled before Resolve returns and
// never changes afterwards; cycles in the schema are cycles through cells.
type Ref struct {
	Pointer string
	Target  Node
}

func (*Any) node()    {}
func (*Never) node()  {}
func (*Leaf) node()   {}
func (*Array) node()  {}
func (*Object) node() {}
func (*AnyOf) node()  {}
func (*OneOf) node()  {}
func (*AllOf) node()  {}
func (*Not) node()    {}
func (*Enum) node()   {}
func (*Ref) node()    {}

// Deref follows reference cells to the first non-reference node. A chain
// of cells that loops back on itself is rejected during resolution, so this
// terminates on resolved graphs.
func Deref(n Node) Node {
	for {
		r, ok := n.(*Ref)
		if !ok {
			return n
		}
		n = r.Target
	}
}
