package middleware

import (
	"fmt"
	"net/http"
	"time"

	apperrors "uplinkpolicy/pkg/errors"
	"uplinkpolicy/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware renders the last error a handler attached with
// c.Error. Core errors are mapped onto their HTTP status.
func ErrorHandlerMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		ctx := c.Request.Context()
		appErr := apperrors.FromDomain(c.Errors.Last().Err)
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			cl.LogError(ctx, appErr, "request failed",
				zap.String("code", string(appErr.Code)),
				zap.Int("status", appErr.HTTPStatus),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
		} else {
			cl.Sugar(ctx).Debugw("request rejected",
				"code", appErr.Code,
				"message", appErr.Message,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
		}

		body := gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		}
		if len(appErr.Context) > 0 {
			body["details"] = appErr.Context
		}
		if id := logger.RequestIDFromContext(ctx); id != "" {
			body["request_id"] = id
		}
		c.JSON(appErr.HTTPStatus, body)
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				ctx := c.Request.Context()
				cl.LogError(ctx, fmt.Errorf("panic: %v", err), "panic recovered",
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)

				body := gin.H{
					"error":   string(apperrors.ErrCodeInternal),
					"message": "internal server error",
				}
				if id := logger.RequestIDFromContext(ctx); id != "" {
					body["request_id"] = id
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, body)
			}
		}()

		c.Next()
	}
}

// RequestLogMiddleware writes one access log line per request.
func RequestLogMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		cl.LogRequest(c.Request.Context(), c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
