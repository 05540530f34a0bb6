package middleware

import (
	"net/http"

	"parcel-share/pkg/metrics"
	"parcel-share/pkg/utils"

	"go.uber.org/zap"
)

// Recover turns a handler panic into a 500 envelope. http.ErrAbortHandler is re-raised
// so the server still drops the connection.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				metrics.HTTPPanics.Inc()
				userID, _ := utils.GetUserIDFromContext(r.Context())
				logger.Error("Panic recovered",
					zap.Any("error", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("user_id", userID.String()),
					zap.Stack("stack"),
				)

				utils.ResponseInternalError(w, "Internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
