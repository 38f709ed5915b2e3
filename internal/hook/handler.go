// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package hook

import (
	"context"

	"github.com/hookhost/hookhost/internal/marshal"
)

// Handler is one script's callback for one event. It receives a borrowed
// argument buffer and may return an owned buffer, which the dispatcher frees.
type Handler interface {
	Invoke(ctx context.Context, args *marshal.CallArgs) (*marshal.ReturnArgs, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args *marshal.CallArgs) (*marshal.ReturnArgs, error)

// Invoke calls f.
func (f HandlerFunc) Invoke(ctx context.Context, args *marshal.CallArgs) (*marshal.ReturnArgs, error) {
	return f(ctx, args)
}
