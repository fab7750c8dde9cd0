package server

import (
	"time"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalContextKey = "mblog_principal"

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if principal := principalFrom(c); principal != nil {
			fields = append(fields, zap.Int64("user_id", principal.UserID))
		}
		logger.Debug("request", fields...)
	}
}

// requireLogin rejects requests without a valid credential.
func (h *httpHandler) requireLogin(c *gin.Context) {
	principal, err := h.resolver.Resolve(c.Request.Context(), c.GetHeader(h.tokenHeader))
	if err != nil {
		h.fail(c, err)
		c.Abort()
		return
	}
	c.Set(principalContextKey, &principal)
	c.Next()
}

// optionalLogin attaches a principal when the credential is valid and continues either way.
func (h *httpHandler) optionalLogin(c *gin.Context) {
	principal, err := h.resolver.ResolveOptional(c.Request.Context(), c.GetHeader(h.tokenHeader))
	if err != nil {
		h.fail(c, err)
		c.Abort()
		return
	}
	if principal != nil {
		c.Set(principalContextKey, principal)
	}
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil || !principal.IsAdmin() {
		h.fail(c, apperr.Fail("admin only"))
		c.Abort()
		return
	}
	c.Next()
}

func principalFrom(c *gin.Context) *auth.Principal {
	value, ok := c.Get(principalContextKey)
	if !ok {
		return nil
	}
	principal, _ := value.(*auth.Principal)
	return principal
}
