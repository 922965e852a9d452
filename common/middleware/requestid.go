package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/YaganovValera/tradeflow/common/logger"
)

// RequestIDHeader — заголовок, через который request-ID приходит и возвращается.
const RequestIDHeader = "X-Request-ID"

func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			ctx := logger.ContextWithRequestID(r.Context(), reqID)
			w.Header().Set(RequestIDHeader, reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
