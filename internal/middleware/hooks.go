package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gezibash/arc-registrar/pkg/logging"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Matcher selects calls by full method name.
type Matcher func(fullMethod string) bool

// Prefixed matches methods starting with any of prefixes.
func Prefixed(prefixes ...string) Matcher {
	return func(m string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(m, p) {
				return true
			}
		}
		return false
	}
}

// Except matches every method not matched by m.
func Except(m Matcher) Matcher {
	return func(s string) bool { return !m(s) }
}

// Require returns a hook that runs check on matching calls. A check error
// that is not already a status becomes PermissionDenied.
func Require(match Matcher, check func(ctx context.Context) error) Hook {
	return func(ctx context.Context, info *CallInfo) (context.Context, error) {
		if !match(info.FullMethod) {
			return ctx, nil
		}
		if err := check(ctx); err != nil {
			if _, ok := status.FromError(err); ok {
				return ctx, err
			}
			return ctx, status.Error(codes.PermissionDenied, err.Error())
		}
		return ctx, nil
	}
}

type startKey struct{}

// Timing returns a hook and observer pair that logs each call with its
// caller, status code and duration. Failed calls log at info.
func Timing(log *logging.Logger) (Hook, Observer) {
	pre := func(ctx context.Context, _ *CallInfo) (context.Context, error) {
		return context.WithValue(ctx, startKey{}, time.Now()), nil
	}
	post := func(ctx context.Context, info *CallInfo) {
		args := []any{"method", info.FullMethod, "code", info.Code.String()}
		if info.IsStream {
			args = append(args, "stream", true)
		}
		if info.Signed {
			args = append(args, "caller", info.Caller.Hex())
		}
		if start, ok := ctx.Value(startKey{}).(time.Time); ok {
			args = append(args, "duration", time.Since(start))
		}
		if info.Err != nil {
			log.InfoContext(ctx, "call failed", append(args, "error", status.Convert(info.Err).Message())...)
			return
		}
		log.DebugContext(ctx, "call", args...)
	}
	return pre, post
}
