package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cwrk-planet/huddle-service/pkg/httputil"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const mdRequestID = "x-request-id"

// UnaryServerInterceptor: request id + logging + recovery + timeout guard (если у вызова нет deadline).
func UnaryServerInterceptor(lg *slog.Logger, guard time.Duration) grpc.UnaryServerInterceptor {
	if lg == nil {
		lg = slog.Default()
	}
	if guard <= 0 {
		// дефолтный guard — 10 секунд
		guard = 10 * time.Second
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, guard)
			defer cancel()
		}

		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			reqID = first(md.Get(mdRequestID))
		}
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx = httputil.WithRequestID(ctx, reqID)

		defer func() {
			if r := recover(); r != nil {
				lg.ErrorContext(ctx, "grpc unary panic",
					"method", info.FullMethod,
					"req_id", reqID,
					"panic", r,
					"stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}

			level := slog.LevelInfo
			switch status.Code(err) {
			case codes.OK, codes.NotFound, codes.PermissionDenied, codes.InvalidArgument, codes.Unauthenticated:
			default:
				level = slog.LevelError
			}
			lg.Log(ctx, level, "grpc unary",
				"method", info.FullMethod,
				"req_id", reqID,
				"code", status.Code(err).String(),
				"dur_ms", time.Since(start).Milliseconds(),
				"err", errString(err))
		}()

		return handler(ctx, req)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
