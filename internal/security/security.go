package security

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
)

// Config holds request hardening settings
type Config struct {
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	EnableHSTS     bool
	CSPReportURI   string
}

// DefaultConfig returns secure defaults
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   64 << 10,
		RequestTimeout: 10 * time.Second,
	}
}

var allowedContentTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
}

// ValidateContentType rejects bodies that are neither JSON nor a form post
func ValidateContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		contentType := strings.ToLower(c.GetHeader("Content-Type"))
		if contentType == "" || c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		for _, allowed := range allowedContentTypes {
			if strings.Contains(contentType, allowed) {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, apperrors.NewValidationError("unsupported content type", contentType))
	}
}

// LimitBody caps the request body size
func LimitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// RequestTimeout bounds the context every render pass runs under
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Timeout", strconv.Itoa(int(timeout.Seconds())))

		c.Next()
	}
}
