package metadata

import "fmt"

// Kind is the primitive shape of an attribute type.
type Kind string

const (
	KindNode    Kind = "NODE"
	KindString  Kind = "STRING"
	KindNumeric Kind = "NUMERIC"
	KindBoolean Kind = "BOOLEAN"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindNode, KindString, KindNumeric, KindBoolean:
		return k, nil
	}
	return "", fmt.Errorf("unknown attribute kind %q", s)
}

// AttributeType is a type signature. Primitive signatures are named after
// their kind; enum signatures carry the family name and are always STRING.
type AttributeType struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	IsList bool   `json:"is_list"`
	IsEnum bool   `json:"is_enum"`
}

func (t *AttributeType) String() string {
	if t == nil {
		return "<nil>"
	}
	s := t.Name
	if t.IsEnum {
		s = "enum:" + s
	}
	if t.IsList {
		s += "[]"
	}
	return s
}

// EnumValue is one allowed literal of an enum signature.
type EnumValue struct {
	ID              int64  `json:"id"`
	AttributeTypeID int64  `json:"attribute_type_id"`
	Value           string `json:"value"`
}

// Attribute binds a field name to its type signature.
type Attribute struct {
	ID     int64          `json:"id"`
	Name   string         `json:"name"`
	TypeID int64          `json:"attribute_type_id"`
	Type   *AttributeType `json:"type,omitempty"`
}
