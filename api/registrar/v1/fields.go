package registrarv1

import (
	"google.golang.org/protobuf/types/known/structpb"
)

// Message builds a Struct from a Go map. Values must be types accepted by
// structpb.NewValue.
func Message(fields map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(fields)
}

// String returns a string field, or "" when absent or not a string.
func String(m *structpb.Struct, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// Bool returns a bool field.
func Bool(m *structpb.Struct, key string) bool {
	if m == nil {
		return false
	}
	return m.GetFields()[key].GetBoolValue()
}

// Number returns a numeric field.
func Number(m *structpb.Struct, key string) float64 {
	if m == nil {
		return 0
	}
	return m.GetFields()[key].GetNumberValue()
}

// Has reports whether key is present.
func Has(m *structpb.Struct, key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.GetFields()[key]
	return ok
}

// Struct returns a nested struct field, or nil.
func Struct(m *structpb.Struct, key string) *structpb.Struct {
	if m == nil {
		return nil
	}
	return m.GetFields()[key].GetStructValue()
}

// List returns the struct elements of a list field.
func List(m *structpb.Struct, key string) []*structpb.Struct {
	if m == nil {
		return nil
	}
	var out []*structpb.Struct
	for _, v := range m.GetFields()[key].GetListValue().GetValues() {
		if s := v.GetStructValue(); s != nil {
			out = append(out, s)
		}
	}
	return out
}
