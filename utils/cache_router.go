package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	CacheNoCache = 0
	CacheCustom  = -1
)

// CacheRouter sets the cache-control header on every response.
// Inference results depend on the upload, so the default is no-cache.
type CacheRouter struct {
	CacheTime int // seconds, CacheNoCache or CacheCustom (handler sets it)
}

func (cr *CacheRouter) Handler() gin.HandlerFunc {
	header := "no-store"
	if cr.CacheTime > 0 {
		header = "public, max-age=" + strconv.Itoa(cr.CacheTime)
	}
	return func(c *gin.Context) {
		if cr.CacheTime != CacheCustom {
			c.Header("Cache-Control", header)
		}
		c.Next()
	}
}
