package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/crowdpay/pkg/escrowv1"
)

// LoggingInterceptor returns a Connect interceptor that logs every RPC call
// with its procedure, caller, and duration. Failures also carry the Connect
// code and the escrow failure kind. Rejections the caller can fix log at
// WARN; internal and unknown errors log at ERROR.
func LoggingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			attrs := []any{
				"procedure", req.Spec().Procedure,
				"caller", GetIdentity(ctx), // empty if pre-auth
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err == nil {
				logger.Info("RPC ok", attrs...)
				return resp, nil
			}

			var connectErr *connect.Error
			if !errors.As(err, &connectErr) {
				logger.Error("RPC error", append(attrs, "error", err)...)
				return resp, err
			}

			attrs = append(attrs,
				"code", connectErr.Code(),
				"kind", connectErr.Meta().Get(escrowv1.ErrorKindKey),
				"error", connectErr.Message(),
			)
			switch connectErr.Code() {
			case connect.CodeInternal, connect.CodeUnknown, connect.CodeDataLoss:
				logger.Error("RPC error", attrs...)
			default:
				logger.Warn("RPC error", attrs...)
			}
			return resp, err
		}
	}
}
