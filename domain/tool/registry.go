package tool

// Registry is the read-only view of the fixed tool set.
// Implementations are built once at startup and never mutated; see
// infrastructure/storage/memory.
type Registry interface {
	// Get retrieves a tool by name.
	Get(name string) (Tool, bool)

	// List returns all registered tools in name order.
	List() []Tool

	// Names returns all registered tool names in order.
	Names() []string

	// Has checks if a tool is registered.
	Has(name string) bool

	// Len returns the number of registered tools.
	Len() int
}

// Declaration is what the completion gateway is told about a tool.
type Declaration struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      Schema `json:"input_schema"`
}

// Declare returns the declaration of t.
func Declare(t Tool) Declaration {
	return Declaration{
		Name:        t.Name(),
		Description: t.Description(),
		Schema:      t.InputSchema(),
	}
}

// Declarations returns the declarations of every tool in r.
func Declarations(r Registry) []Declaration {
	tools := r.List()
	out := make([]Declaration, 0, len(tools))
	for _, t := range tools {
		out = append(out, Declare(t))
	}
	return out
}

// MetadataFields returns every metadata field any tool in r may contribute.
func MetadataFields(r Registry) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range r.List() {
		for _, f := range t.MetadataFields() {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
