package events

import (
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gezibash/arc-registrar/internal/ledger"
)

// EventStruct renders e as a protobuf Struct. Attribute values stay strings.
func EventStruct(e ledger.Event) *structpb.Struct {
	attrs := make(map[string]*structpb.Value, len(e.Attrs))
	for _, a := range e.Attrs {
		attrs[a.Key] = structpb.NewStringValue(a.Value)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"seq":      structpb.NewNumberValue(float64(e.Seq)),
		"receipt":  structpb.NewStringValue(e.Receipt),
		"contract": structpb.NewStringValue(e.Contract),
		"kind":     structpb.NewStringValue(e.Kind),
		"name":     structpb.NewStringValue(e.Name),
		"time":     structpb.NewNumberValue(float64(e.Time)),
		"attrs":    structpb.NewStructValue(&structpb.Struct{Fields: attrs}),
	}}
}

// EventFromStruct is the inverse of EventStruct. Attribute order is not preserved.
func EventFromStruct(s *structpb.Struct) ledger.Event {
	f := s.GetFields()
	e := ledger.Event{
		Seq:      uint64(f["seq"].GetNumberValue()),
		Receipt:  f["receipt"].GetStringValue(),
		Contract: f["contract"].GetStringValue(),
		Kind:     f["kind"].GetStringValue(),
		Name:     f["name"].GetStringValue(),
		Time:     uint64(f["time"].GetNumberValue()),
	}
	for k, v := range f["attrs"].GetStructValue().GetFields() {
		e.Attrs = append(e.Attrs, ledger.Attr{Key: k, Value: v.GetStringValue()})
	}
	return e
}

// Marshal encodes e as compact JSON.
func Marshal(e ledger.Event) ([]byte, error) {
	return protojson.MarshalOptions{}.Marshal(EventStruct(e))
}

// Unmarshal decodes JSON produced by Marshal.
func Unmarshal(data []byte) (ledger.Event, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return ledger.Event{}, err
	}
	return EventFromStruct(&s), nil
}
