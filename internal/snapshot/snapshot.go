package snapshot

import (
	"context"
	"fmt"
	"io"

	"github.com/gezibash/arc-registrar/internal/observability"
	"github.com/gezibash/arc-registrar/internal/statestore/physical"
)

// Save exports b into target under name.
func Save(ctx context.Context, b physical.Backend, target Target, name string, h Header, metrics *observability.Metrics) (sum Summary, err error) {
	op, ctx := observability.StartOperation(ctx, metrics, "snapshot.save", observability.KeySnapshot.String(name))
	defer func() {
		if err == nil {
			op.Annotate(observability.KeyKeys.Int64(sum.Keys))
		}
		op.End(err)
	}()

	if err := ValidName(name); err != nil {
		return Summary{}, err
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		var exportErr error
		sum, exportErr = Export(ctx, b, pw, h)
		_ = pw.CloseWithError(exportErr)
		done <- exportErr
	}()

	_, putErr := target.Put(ctx, name, pr)
	_ = pr.CloseWithError(putErr)
	if exportErr := <-done; exportErr != nil {
		return Summary{}, exportErr
	}
	if putErr != nil {
		return Summary{}, fmt.Errorf("store snapshot %s: %w", name, putErr)
	}
	return sum, nil
}

// Restore imports the named snapshot from target into b.
func Restore(ctx context.Context, b physical.Backend, target Target, name string, opts ImportOptions, metrics *observability.Metrics) (sum Summary, err error) {
	op, ctx := observability.StartOperation(ctx, metrics, "snapshot.restore", observability.KeySnapshot.String(name))
	defer func() {
		if err == nil {
			op.Annotate(observability.KeyKeys.Int64(sum.Keys))
		}
		op.End(err)
	}()

	if err := ValidName(name); err != nil {
		return Summary{}, err
	}
	rc, err := target.Get(ctx, name)
	if err != nil {
		return Summary{}, err
	}
	defer func() { _ = rc.Close() }()

	return Import(ctx, b, rc, opts)
}
