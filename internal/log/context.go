package log

import (
	"context"
	"net/http"
)

const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Propagate forwards the request id carried by req's context to the directory
// and assistant backends.
func Propagate(req *http.Request) {
	if id := RequestID(req.Context()); id != "" {
		req.Header.Set(RequestIDHeader, id)
	}
}
