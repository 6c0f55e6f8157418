// Package validation provides input validation helpers and middleware for
// the ChainGuardian API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

var (
	// ethAddressRegex validates Ethereum addresses
	ethAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	// txHashRegex validates transaction hashes
	txHashRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	// sigHashRegex validates alert signature hashes (SHA-256, no prefix)
	sigHashRegex = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidEthAddress checks if a string is a valid Ethereum address
func IsValidEthAddress(addr string) bool {
	return ethAddressRegex.MatchString(addr)
}

// IsValidTxHash checks if a string is a valid transaction hash (0x + 64 hex)
func IsValidTxHash(hash string) bool {
	return txHashRegex.MatchString(hash)
}

// IsValidSigHash checks if a string is a lowercase SHA-256 hex digest
func IsValidSigHash(hash string) bool {
	return sigHashRegex.MatchString(hash)
}

// SanitizeAddress normalizes an Ethereum address
func SanitizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.ToLower(addr)

	if !strings.HasPrefix(addr, "0x") && len(addr) == 40 {
		addr = "0x" + addr
	}

	return addr
}

// SigHashParamMiddleware validates the :sigHash URL parameter on routes
// that use it, rejecting malformed hashes before any store access.
func SigHashParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := c.Param("sigHash")
		if hash != "" && !IsValidSigHash(hash) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_sig_hash",
				"message": "sigHash must be a lowercase SHA-256 hex digest (64 hex chars)",
			})
			return
		}
		c.Next()
	}
}
