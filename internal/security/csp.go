package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
)

const nonceKey = "csp-nonce"

// GenerateNonce generates a cryptographically secure random nonce
func GenerateNonce() (string, error) {
	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(nonceBytes), nil
}

// CSPMiddleware generates a per-request nonce for the page's inline styles and sets the
// Content-Security-Policy header. The page ships no scripts.
func CSPMiddleware(reportURI string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Generate nonce
		nonce, err := GenerateNonce()
		if err != nil {
			_ = c.Error(apperrors.NewInternalError("failed to generate CSP nonce", err))
			c.Abort()
			return
		}

		// Store nonce in context for template access
		c.Set(nonceKey, nonce)

		// Build CSP policy with nonce
		policy := buildCSPPolicy(nonce)

		// Optional: CSP reporting
		if reportURI != "" {
			policy += "; report-uri " + reportURI
		}
		// Set CSP header
		c.Header("Content-Security-Policy", policy)

		c.Next()
	}
}

// GetNonce retrieves the nonce from the Gin context
func GetNonce(c *gin.Context) string {
	if nonce, exists := c.Get(nonceKey); exists {
		if nonceStr, ok := nonce.(string); ok {
			return nonceStr
		}
	}
	return ""
}

// buildCSPPolicy constructs the Content Security Policy with the provided nonce
func buildCSPPolicy(nonce string) string {
	return fmt.Sprintf(
		"default-src 'none'; "+
			"script-src 'none'; "+
			"style-src 'nonce-%s'; "+
			"img-src 'self' data:; "+
			"frame-ancestors 'none'; "+
			"base-uri 'none'; "+
			"form-action 'self'",
		nonce,
	)
}
