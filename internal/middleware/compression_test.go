package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(cm *Compressor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(cm.Handler())
	r.GET("/page", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(strings.Repeat("<rect/>", 400)))
	})
	r.GET("/small", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/image", func(c *gin.Context) {
		c.Data(http.StatusOK, "image/png", make([]byte, 4096))
	})
	return r
}

func get(r *gin.Engine, path string, gzipOK bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if gzipOK {
		req.Header.Set("Accept-Encoding", "gzip, deflate")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCompressesLargeHTML(t *testing.T) {
	cm := NewCompressor(DefaultCompressionConfig())
	w := get(setupRouter(cm), "/page", true)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Contains(t, w.Header().Values("Vary"), "Accept-Encoding")

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("<rect/>", 400), string(body))

	stats := cm.GetStats()
	assert.Equal(t, int64(1), stats["compressed_requests"])
	assert.Less(t, stats["compression_ratio"].(float64), 0.5)
}

func TestSkipsWhenNotApplicable(t *testing.T) {
	cm := NewCompressor(DefaultCompressionConfig())
	r := setupRouter(cm)

	tests := []struct {
		name   string
		path   string
		gzipOK bool
	}{
		{name: "client without gzip", path: "/page", gzipOK: false},
		{name: "small body", path: "/small", gzipOK: true},
		{name: "binary content", path: "/image", gzipOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.path, tt.gzipOK)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Empty(t, w.Header().Get("Content-Encoding"))
		})
	}

	assert.Equal(t, int64(0), cm.GetStats()["compressed_requests"])
}

func TestInvalidLevelFallsBack(t *testing.T) {
	cm := NewCompressor(CompressionConfig{MinSize: 1, CompressionLevel: 42, ContentTypes: []string{"text/html"}})
	w := get(setupRouter(cm), "/page", true)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}
