package middleware

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CallInfo describes a registrar call. Caller is set before the pre hooks
// run when the request carried a valid envelope; Code and Err are set
// once the call is finished.
type CallInfo struct {
	FullMethod string
	IsStream   bool
	Caller     common.Address
	Signed     bool

	Code codes.Code
	Err  error
}

// Hook runs before the handler. Returning an error rejects the call.
type Hook func(ctx context.Context, info *CallInfo) (context.Context, error)

// Observer sees every finished call, rejected ones included.
type Observer func(ctx context.Context, info *CallInfo)

// Chain holds ordered pre hooks and post observers.
type Chain struct {
	Pre  []Hook
	Post []Observer
}

// Admit runs the pre hooks in order and stops at the first rejection.
// A rejected call is finished immediately.
func (c *Chain) Admit(ctx context.Context, info *CallInfo) (context.Context, error) {
	for _, h := range c.Pre {
		next, err := h(ctx, info)
		if err != nil {
			c.Finish(ctx, info, err)
			return ctx, err
		}
		ctx = next
	}
	return ctx, nil
}

// Finish records the outcome and runs every observer.
func (c *Chain) Finish(ctx context.Context, info *CallInfo, err error) {
	info.Err = err
	info.Code = status.Code(err)
	for _, o := range c.Post {
		o(ctx, info)
	}
}
