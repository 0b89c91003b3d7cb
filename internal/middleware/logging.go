package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// LoggingInterceptor logs one line per RPC: procedure, caller, outcome and
// latency.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			procedure := req.Spec().Procedure

			resp, err := next(ctx, req)

			attrs := []any{
				"procedure", procedure,
				"user_id", GetUserID(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			switch {
			case err == nil:
				slog.Info("rpc ok", attrs...)
			default:
				var cerr *connect.Error
				if errors.As(err, &cerr) {
					slog.Warn("rpc failed", append(attrs, "code", cerr.Code(), "error", cerr.Message())...)
				} else {
					slog.Error("rpc failed", append(attrs, "error", err)...)
				}
			}
			return resp, err
		}
	}
}
