package registrarv1

import (
	"context"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestAccessOf(t *testing.T) {
	tests := []struct {
		method string
		want   Access
	}{
		{FullMethod(Entry), Public},
		{FullMethod(Bid), Signed},
		{FullMethod(Advance), Operator},
		{FullMethod(WatchEvents), Public},
		{"/grpc.health.v1.Health/Check", Public},
		{"/" + ServiceName + "/", Public},
	}
	for _, tc := range tests {
		if got := AccessOf(tc.method); got != tc.want {
			t.Errorf("AccessOf(%q) = %v, want %v", tc.method, got, tc.want)
		}
	}
}

func TestServiceDescRequiresEveryHandler(t *testing.T) {
	handlers := map[string]UnaryHandler{}
	noop := func(context.Context, *structpb.Struct) (*structpb.Struct, error) { return &structpb.Struct{}, nil }
	for name := range Unary {
		if name != Mint {
			handlers[name] = noop
		}
	}
	if _, err := ServiceDesc(handlers, nil); err == nil {
		t.Fatal("ServiceDesc accepted a missing handler")
	}
	handlers[Mint] = noop
	desc, err := ServiceDesc(handlers, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(desc.Methods) != len(Unary) || len(desc.Streams) != 0 {
		t.Errorf("desc has %d methods, %d streams", len(desc.Methods), len(desc.Streams))
	}
}

func TestFields(t *testing.T) {
	m, err := Message(map[string]any{
		"name":  "foo",
		"start": true,
		"limit": 10,
		"entry": map[string]any{"state": "Owned"},
		"events": []any{
			map[string]any{"name": "NewBid"},
			"skip",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if String(m, "name") != "foo" || !Bool(m, "start") || Number(m, "limit") != 10 {
		t.Errorf("scalar fields = %v", m)
	}
	if String(Struct(m, "entry"), "state") != "Owned" {
		t.Error("nested struct")
	}
	if evs := List(m, "events"); len(evs) != 1 || String(evs[0], "name") != "NewBid" {
		t.Errorf("List = %v", evs)
	}
	if Has(m, "missing") || String(nil, "x") != "" {
		t.Error("absent fields")
	}
}
