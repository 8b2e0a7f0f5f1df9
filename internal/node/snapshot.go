package node

import (
	"context"

	"github.com/gezibash/arc-registrar/internal/snapshot"
)

// Snapshot writes the full state, including the manifest and manual clock,
// to target under name. An empty name picks a timestamped one.
func (n *Node) Snapshot(ctx context.Context, target snapshot.Target, name, note string) (string, snapshot.Summary, error) {
	if name == "" {
		name = snapshot.Name(n.Now())
	}
	if n.manual != nil {
		if err := saveClock(ctx, n.backend, n.manual.Now()); err != nil {
			return "", snapshot.Summary{}, err
		}
	}
	sum, err := snapshot.Save(ctx, n.backend, target, name, snapshot.Header{Note: note}, n.metrics)
	if err != nil {
		return "", snapshot.Summary{}, err
	}
	n.log.InfoContext(ctx, "snapshot saved", "name", name, "keys", sum.Keys, "bytes", sum.Bytes)
	return name, sum, nil
}
