package validation

// Kind is the declared type of a schema or of one of its fields.
type Kind string

const (
	KindString  Kind = "string"
	KindBoolean Kind = "boolean"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	// KindShape marks a declared structure whose fields are checked.
	KindShape Kind = "shape"
)

// Field describes one member of a shape.
type Field struct {
	Name     string
	Type     Kind
	Required bool
	// Rules is a go-playground/validator tag applied to the value when it is
	// present, e.g. "min=0,max=150" or "email".
	Rules       string
	Description string
	Example     any
}

// Schema is the declared input shape of a route. A nil Schema, or one of a
// primitive Kind, lets any payload through untouched.
type Schema struct {
	Name   string
	Kind   Kind
	Fields []Field
}

// Shape declares a structure checked field by field, in order.
func Shape(name string, fields ...Field) *Schema {
	return &Schema{Name: name, Kind: KindShape, Fields: fields}
}

// Primitive declares a payload that is never checked.
func Primitive(kind Kind) *Schema {
	return &Schema{Name: string(kind), Kind: kind}
}

// Passthrough reports whether payloads for s skip validation.
func (s *Schema) Passthrough() bool {
	return s == nil || s.Kind != KindShape
}
