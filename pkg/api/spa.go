// Wizard bundle serving follows github.com/mandrigin/gin-spa (MIT License,
// Copyright (c) 2020 Igor Mandrigin).

package api

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

// Cache-Control values for the wizard bundle. The build emits content-hashed
// files under /assets/; index.html must be revalidated so a new release is
// picked up on the next visit.
const (
	cacheImmutable  = "public, max-age=31536000, immutable"
	cacheRevalidate = "no-cache, must-revalidate"
	cacheShort      = "public, max-age=3600, must-revalidate"
)

func cachePolicy(path string) string {
	switch {
	case strings.HasPrefix(path, "/assets/"):
		return cacheImmutable
	case path == "/" || strings.HasSuffix(path, ".html"):
		return cacheRevalidate
	default:
		return cacheShort
	}
}

// ServeSPA serves the built wizard from spaDirectory and falls back to its
// index.html for client-side routes. Only GET and HEAD are served; other
// methods on unknown routes get a plain 404.
func ServeSPA(urlPrefix, spaDirectory string) gin.HandlerFunc {
	bundle := static.LocalFile(spaDirectory, true)
	files := http.FileServer(bundle)
	if urlPrefix != "" {
		files = http.StripPrefix(urlPrefix, files)
	}
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		path := c.Request.URL.Path
		if !bundle.Exists(urlPrefix, path) {
			path = "/"
			c.Request.URL.Path = urlPrefix
		}
		c.Header("Cache-Control", cachePolicy(path))
		files.ServeHTTP(c.Writer, c.Request)
		c.Abort()
	}
}
