package observability

import (
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/gezibash/arc-registrar"

func tracer() trace.Tracer { return otel.Tracer(instrumentation) }

// Span attribute keys shared by registrar operations.
const (
	KeyFrom      = attribute.Key("registrar.from")
	KeyReceipt   = attribute.Key("registrar.receipt")
	KeyErrorKind = attribute.Key("registrar.error_kind")
	KeySnapshot  = attribute.Key("registrar.snapshot")
	KeyKeys      = attribute.Key("registrar.keys")
	KeyBackend   = attribute.Key("registrar.backend")
	KeyMethod    = attribute.Key("rpc.method")
)

// Address renders an account address attribute.
func Address(k attribute.Key, a common.Address) attribute.KeyValue { return k.String(a.Hex()) }
