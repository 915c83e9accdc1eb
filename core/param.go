package core

// Parameter describes one named argument of a capability or one declared
// input of an agent. Capability schemas are ordered slices of parameters;
// the declaration order is preserved when schemas are rendered into prompts.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// Parameter type hints. Validation treats an empty type as "any".
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
	TypeAny     = "any"
)
