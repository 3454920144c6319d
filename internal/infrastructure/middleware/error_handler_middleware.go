package middleware

import (
	stderrors "errors"
	"net/http"

	"watchsync/internal/core/domain"
	"watchsync/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware renders errors attached to the gin context as
// structured JSON responses. Domain sentinels from the rooms directory map
// onto their HTTP equivalents; everything else falls through to 500.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		if appErr := errors.GetAppError(err); appErr != nil {
			logger.Errorw("request failed",
				"code", appErr.Code,
				"message", appErr.Message,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
			)
			c.JSON(appErr.HTTPStatus, gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
			})
			return
		}

		switch {
		case stderrors.Is(err, domain.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   string(errors.ErrCodeNotFound),
				"message": "room not found",
			})
		case stderrors.Is(err, domain.ErrTokenExpired):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   string(errors.ErrCodeUnauthorized),
				"message": "rooms api token expired",
			})
		default:
			logger.Errorw("unhandled error",
				"error", err.Error(),
				"path", c.Request.URL.Path,
			)
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   string(errors.ErrCodeTransport),
				"message": "upstream request failed",
			})
		}
	}
}

// RecoveryMiddleware recovers from panics in handlers and returns a 500.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic recovered",
					"error", r,
					"path", c.Request.URL.Path,
				)
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "internal server error",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}
