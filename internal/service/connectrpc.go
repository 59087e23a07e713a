package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"connectrpc.com/connect"
)

type authInterceptor = func(ctx context.Context, header string) (context.Context, error)

type genericAuthInterceptor struct {
	fn authInterceptor
}

func newGenericAuthInterceptor(fn authInterceptor) genericAuthInterceptor {
	return genericAuthInterceptor{fn: fn}
}

func (a genericAuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		var err error
		ctx, err = a.fn(ctx, req.Header().Get("Authorization"))
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (a genericAuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (a genericAuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, shc connect.StreamingHandlerConn) error {
		var err error
		ctx, err = a.fn(ctx, shc.RequestHeader().Get("Authorization"))
		if err != nil {
			return err
		}
		return next(ctx, shc)
	}
}

// NewAccessTokenInterceptor rejects calls whose Authorization header is not
// `Bearer <accessToken>`. An empty accessToken lets every call through.
func NewAccessTokenInterceptor(accessToken string) connect.Interceptor {
	return newGenericAuthInterceptor(func(ctx context.Context, header string) (context.Context, error) {
		if accessToken == "" {
			return ctx, nil
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(accessToken)) != 1 {
			return ctx, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid access token"))
		}
		return ctx, nil
	})
}
