package httpx

import (
	"net/http"

	"github.com/NYTimes/gziphandler"
)

// WithGzip compresses responses for clients that send Accept-Encoding: gzip.
// Bodies below gziphandler.DefaultMinSize are written uncompressed.
func WithGzip(next http.Handler) http.Handler {
	return gziphandler.GzipHandler(next)
}
