// common/middleware/middleware.go
package middleware

import "net/http"

// Compose склеивает цепочку в один middleware; первый в списке оборачивает
// все остальные и видит запрос раньше них.
func Compose(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			if mws[i] == nil {
				continue
			}
			next = mws[i](next)
		}
		return next
	}
}
