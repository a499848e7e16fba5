package apiapp

import (
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/infra/metrics"
	authsvc "github.com/ivankudzin/marketplace/internal/services/auth"
	httperrors "github.com/ivankudzin/marketplace/internal/transport/http/errors"
)

const defaultRequestTimeout = 30 * time.Second

type chiRouter interface {
	Use(middlewares ...func(http.Handler) http.Handler)
}

// ApplyMiddlewares installs the stack shared by every route.
func ApplyMiddlewares(r chiRouter, log *zap.Logger, m *metrics.Engine, requestTimeout time.Duration) {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	r.Use(
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		chimiddleware.Timeout(requestTimeout),
		m.Middleware,
		accessLog(log),
	)
}

func AuthMiddleware(authService *authsvc.Service, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authService == nil {
				denied(w, http.StatusInternalServerError, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
				return
			}

			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				denied(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}

			caller, err := authService.Authenticate(r.Context(), token)
			if err != nil {
				if log != nil {
					log.Debug("access token rejected",
						zap.String("request_id", chimiddleware.GetReqID(r.Context())),
						zap.Error(err),
					)
				}
				denied(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token")
				return
			}

			next.ServeHTTP(w, r.WithContext(authsvc.WithCaller(r.Context(), caller)))
		})
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := authsvc.CallerFromContext(r.Context())
			switch {
			case !ok:
				denied(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			case !caller.HasRole(roles...):
				denied(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func denied(w http.ResponseWriter, status int, code, message string) {
	httperrors.Write(w, status, httperrors.APIError{Code: code, Message: message})
}

// bearerToken returns "" unless value is "Bearer <token>".
func bearerToken(value string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("http_request",
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
