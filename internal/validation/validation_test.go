package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIsValidEthAddress(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"0x" + strings.Repeat("a", 40), true},
		{"0x" + strings.Repeat("A", 40), true},
		{"0x1234567890abcdef1234567890ABCDEF12345678", true},
		{strings.Repeat("a", 40), false},         // no prefix
		{"0x" + strings.Repeat("a", 39), false},  // short
		{"0x" + strings.Repeat("a", 41), false},  // long
		{"0x" + strings.Repeat("g", 40), false},  // non-hex
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidEthAddress(tt.addr); got != tt.want {
			t.Errorf("IsValidEthAddress(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestIsValidTxHash(t *testing.T) {
	tests := []struct {
		hash string
		want bool
	}{
		{"0x" + strings.Repeat("ab", 32), true},
		{"0x" + strings.Repeat("AB", 32), true},
		{strings.Repeat("ab", 32), false},
		{"0x" + strings.Repeat("ab", 31), false},
		{"0xzz" + strings.Repeat("ab", 31), false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidTxHash(tt.hash); got != tt.want {
			t.Errorf("IsValidTxHash(%q) = %v, want %v", tt.hash, got, tt.want)
		}
	}
}

func TestIsValidSigHash(t *testing.T) {
	tests := []struct {
		hash string
		want bool
	}{
		{strings.Repeat("ab", 32), true},
		{strings.Repeat("AB", 32), false}, // digests are lowercase
		{"0x" + strings.Repeat("ab", 32), false},
		{strings.Repeat("ab", 31), false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidSigHash(tt.hash); got != tt.want {
			t.Errorf("IsValidSigHash(%q) = %v, want %v", tt.hash, got, tt.want)
		}
	}
}

func TestSanitizeAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  0xABCdef  ", "0xabcdef"},
		{strings.Repeat("A", 40), "0x" + strings.Repeat("a", 40)},
		{"0x123", "0x123"},
		{"short", "short"},
	}

	for _, tt := range tests {
		if got := SanitizeAddress(tt.in); got != tt.want {
			t.Errorf("SanitizeAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSigHashParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/alerts/:sigHash", SigHashParamMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		sigHash string
		want    int
	}{
		{strings.Repeat("ab", 32), http.StatusOK},
		{"not-a-hash", http.StatusBadRequest},
		{strings.Repeat("AB", 32), http.StatusBadRequest},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/alerts/"+tt.sigHash, nil)
		router.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("GET /alerts/%s status = %d, want %d", tt.sigHash, w.Code, tt.want)
		}
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/", RequestSizeMiddleware(16), func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small"))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("small body status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body status = %d, want 413", w.Code)
	}
}
