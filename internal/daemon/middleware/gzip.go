package middleware

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// debug endpoints answer with a few bytes; subscriptions hijack the connection
var excludedPaths = []string{
	"/v1/debug",
	"/v1/roots/subscribe",
}

// Gzip compresses responses, which matters for large file listings.
func Gzip() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.DefaultCompression,
		gzip.WithExcludedPaths(excludedPaths),
	)
}
