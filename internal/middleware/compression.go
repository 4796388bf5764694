package middleware

import (
	"compress/gzip"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // smallest first write that is compressed, in bytes
	CompressionLevel int      // gzip level, 1-9
	ContentTypes     []string // content types to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/html",
			"text/plain",
		},
	}
}

// Compressor gzips page and API responses for clients that accept it
type Compressor struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressor creates a compressor. An invalid level falls back to the default.
func NewCompressor(config CompressionConfig) *Compressor {
	level := config.CompressionLevel
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}

	cm := &Compressor{config: config, stats: NewCompressionStats()}
	cm.pool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(nil, level)
		return gz
	}
	return cm
}

// Handler returns the gin middleware
func (cm *Compressor) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		w := &gzipWriter{ResponseWriter: c.Writer, cm: cm}
		c.Writer = w
		defer w.finish()

		c.Next()
	}
}

// GetStats returns compression statistics
func (cm *Compressor) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}

func (cm *Compressor) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// gzipWriter decides on the first write whether the response is compressed
type gzipWriter struct {
	gin.ResponseWriter
	cm       *Compressor
	gz       *gzip.Writer
	decided  bool
	original int64
	before   int
}

func (w *gzipWriter) Write(data []byte) (int, error) {
	if !w.decided {
		w.decided = true
		h := w.Header()
		if h.Get("Content-Encoding") == "" &&
			len(data) >= w.cm.config.MinSize &&
			w.cm.shouldCompress(h.Get("Content-Type")) {
			h.Set("Content-Encoding", "gzip")
			h.Add("Vary", "Accept-Encoding")
			h.Del("Content-Length")

			w.before = w.ResponseWriter.Size()
			w.gz = w.cm.pool.Get().(*gzip.Writer)
			w.gz.Reset(w.ResponseWriter)
		}
	}

	w.original += int64(len(data))
	if w.gz == nil {
		return w.ResponseWriter.Write(data)
	}
	return w.gz.Write(data)
}

func (w *gzipWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *gzipWriter) Flush() {
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	w.ResponseWriter.Flush()
}

func (w *gzipWriter) finish() {
	if !w.decided {
		return
	}
	if w.gz == nil {
		w.cm.stats.RecordRequest(w.original, w.original, false)
		return
	}

	_ = w.gz.Close()
	w.gz.Reset(nil)
	w.cm.pool.Put(w.gz)

	sent := w.ResponseWriter.Size()
	if w.before > 0 {
		sent -= w.before
	}
	w.cm.stats.RecordRequest(w.original, int64(sent), true)
	w.gz = nil
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
	UncompressedBytes  int64
	mutex              sync.RWMutex
}

// NewCompressionStats creates new compression statistics
func NewCompressionStats() *CompressionStats {
	return &CompressionStats{}
}

// RecordRequest records a response's sizes before and after compression
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64, compressed bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.TotalRequests++
	cs.TotalBytes += originalSize

	if compressed {
		cs.CompressedRequests++
		cs.UncompressedBytes += originalSize
		cs.CompressedBytes += compressedSize
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	compressionRatio := float64(0)
	if cs.UncompressedBytes > 0 {
		compressionRatio = float64(cs.CompressedBytes) / float64(cs.UncompressedBytes)
	}

	return map[string]interface{}{
		"total_requests":      cs.TotalRequests,
		"compressed_requests": cs.CompressedRequests,
		"total_bytes":         cs.TotalBytes,
		"compressed_bytes":    cs.CompressedBytes,
		"compression_ratio":   compressionRatio,
	}
}
