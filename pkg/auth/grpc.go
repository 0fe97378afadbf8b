package auth

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// authenticates the "authorization" metadata with the same pipeline as
// [HTTPMiddleware]. Methods whose full name is in bypassMethods (for
// example "/grpc.health.v1.Health/Check") are not authenticated.
//
// Rejections are returned as codes.Unauthenticated with the error type in
// the message.
//
// Example:
//
//	server := grpc.NewServer(
//	    grpc.UnaryInterceptor(auth.UnaryServerInterceptor(validator, nil)),
//	)
func UnaryServerInterceptor(v TokenValidator, bypassMethods []string, opts ...Option) grpc.UnaryServerInterceptor {
	o := buildOptions(opts)
	bypass := methodSet(bypassMethods)
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if bypass[info.FullMethod] {
			return handler(ctx, req)
		}
		ctx, err := authenticateGRPC(ctx, v, info.FullMethod, o)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// [UnaryServerInterceptor]. The wrapped stream's Context carries the
// [UserContext].
func StreamServerInterceptor(v TokenValidator, bypassMethods []string, opts ...Option) grpc.StreamServerInterceptor {
	o := buildOptions(opts)
	bypass := methodSet(bypassMethods)
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if bypass[info.FullMethod] {
			return handler(srv, ss)
		}
		ctx, err := authenticateGRPC(ss.Context(), v, info.FullMethod, o)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func methodSet(methods []string) map[string]bool {
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[m] = true
	}
	return set
}

// authenticateGRPC reads the first authorization metadata value and
// validates it. Missing metadata is treated like a missing header.
func authenticateGRPC(ctx context.Context, v TokenValidator, method string, o options) (context.Context, error) {
	var values []string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values = md.Get(strings.ToLower(HeaderAuthorization))
	}

	uc, err := authenticate(ctx, v, values, o)
	if err != nil {
		o.logger.WarnContext(ctx, "auth: gRPC call rejected",
			slog.String("method", method),
			slog.Any("error_type", sserr.GetType(err)),
			slog.Any("error", err),
		)
		return ctx, grpcStatus(err)
	}
	return ContextWithUser(ctx, uc), nil
}

// grpcStatus converts an authentication error into an Unauthenticated
// status whose message starts with the error type.
func grpcStatus(err error) error {
	msg := err.Error()
	if e, ok := sserr.AsError(err); ok {
		msg = e.Type().String() + ": " + e.Message
	}
	return status.Error(codes.Unauthenticated, msg)
}

// wrappedServerStream overrides Context to return the authenticated
// context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the authenticated context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
