package ledger

import (
	"encoding/binary"
	"time"
)

// Attr is one named event field. Values are rendered strings: addresses and
// hashes in 0x hex, amounts in decimal wei, times in unix seconds.
type Attr struct {
	Key   string
	Value string
}

// Event is a log line emitted by a contract during a committed transaction.
type Event struct {
	Seq      uint64
	Receipt  string
	Contract string // hex address of the emitting contract
	Kind     string // contract kind, e.g. "auction"
	Name     string
	Time     uint64
	Attrs    []Attr
}

// Get returns the value of the named attribute.
func (e Event) Get(key string) string {
	for _, a := range e.Attrs {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

// Timestamp returns the event time.
func (e Event) Timestamp() time.Time {
	return time.Unix(int64(e.Time), 0).UTC() //nolint:gosec
}

// Receipt describes a committed transaction.
type Receipt struct {
	ID       string
	Op       string
	From     string
	Time     time.Time
	Duration time.Duration
	Events   []Event
}

// EventsNamed returns the receipt's events with the given name.
func (r *Receipt) EventsNamed(name string) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func eventKey(seq uint64) []byte {
	k := make([]byte, len(prefixEvent)+8)
	copy(k, prefixEvent)
	binary.BigEndian.PutUint64(k[len(prefixEvent):], seq)
	return k
}
