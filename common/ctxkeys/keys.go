// common/ctxkeys/keys.go

// Package ctxkeys хранит ключи context.Value, общие для логгера и HTTP-middleware.
package ctxkeys

type contextKey string

// RequestIDKey — идентификатор HTTP-запроса (X-Request-ID).
const RequestIDKey contextKey = "request_id"
