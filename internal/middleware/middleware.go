package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"eventcart/internal/auth"
	apperr "eventcart/internal/errors"
	"eventcart/internal/logger"
	"eventcart/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
	identityKey  = "identity"
)

// ErrorData is the data part of an error envelope.
type ErrorData struct {
	Kind          apperr.Kind `json:"kind"`
	CorrelationID string      `json:"correlationId,omitempty"`
}

// AbortWithError writes the error envelope for err and stops the chain.
// INTERNAL errors are logged with the request id and their text is hidden.
func AbortWithError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	data := ErrorData{Kind: kind}

	if kind == apperr.Internal {
		data.CorrelationID = c.GetString(requestIDKey)
		logger.WithContext(c.Request.Context()).Error("Internal error",
			"method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	}
	_ = c.Error(err)

	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), models.APIResponse{
		Status:  models.StatusError,
		Message: apperr.MessageOf(err),
		Data:    data,
	})
}

// RequestID assigns every request an id, taken from X-Request-ID when the
// caller sent one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = logger.NewRequestID()
		}

		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), id))

		c.Next()
	}
}

// CORS middleware для обработки CORS запросов
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}

		c.Next()
	}
}

// Logger middleware для структурированного логирования запросов
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		}

		log := logger.WithContext(c.Request.Context())
		switch {
		case c.Writer.Status() >= 500:
			if len(c.Errors) > 0 {
				logFields = append(logFields, "error", c.Errors.String())
			}
			log.Error("Request completed with error", logFields...)
		case c.Writer.Status() >= 400:
			if len(c.Errors) > 0 {
				logFields = append(logFields, "error", c.Errors.String())
			}
			log.Warn("Request rejected", logFields...)
		default:
			log.Debug("Request completed", logFields...)
		}
	}
}

// Recovery middleware для восстановления после паники с детальным логированием
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		slog.Error("PANIC recovered",
			"panic", recovered,
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"client_ip", c.ClientIP(),
		)

		if !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusInternalServerError, models.APIResponse{
				Status:  models.StatusError,
				Message: "internal error",
				Data:    ErrorData{Kind: apperr.Internal, CorrelationID: c.GetString(requestIDKey)},
			})
		}
	})
}

// RequireAuth resolves the bearer token into an Identity.
func RequireAuth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			AbortWithError(c, apperr.ErrUnauthorized)
			return
		}

		id, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(identityKey, id)
		ctx := c.Request.Context()
		if id.Role == models.RoleClient {
			ctx = logger.ContextWithClientID(ctx, id.UserID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// IdentityFrom returns the identity stored by RequireAuth.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

func requireAccess(access func(c *gin.Context) auth.Access) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			AbortWithError(c, apperr.ErrUnauthorized)
			return
		}
		if err := auth.Authorize(id, access(c)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// RequireSelf allows only the client whose id is in the path parameter.
func RequireSelf(param string) gin.HandlerFunc {
	return requireAccess(func(c *gin.Context) auth.Access { return auth.Self(c.Param(param)) })
}

// RequireAdminSelf allows only the administrator whose id is in the path parameter.
func RequireAdminSelf(param string) gin.HandlerFunc {
	return requireAccess(func(c *gin.Context) auth.Access { return auth.AdminSelf(c.Param(param)) })
}

// RequireRole allows any identity with role r.
func RequireRole(r models.Role) gin.HandlerFunc {
	return requireAccess(func(*gin.Context) auth.Access { return auth.Role(r) })
}

// Timeout bounds the request context. Handlers see context.DeadlineExceeded
// from the store once it fires.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
