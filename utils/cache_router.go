package utils

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CacheNoCache = 0
	CacheCustom  = -1
)

// CacheRouter sets a default cache-control header. Prefixes override
// CacheTime for matching paths, the longest prefix wins.
type CacheRouter struct {
	CacheTime int // defaults to CacheNoCache = 0
	Prefixes  map[string]int
}

func (cr *CacheRouter) cacheTime(path string) int {
	result, matched := cr.CacheTime, -1
	for prefix, t := range cr.Prefixes {
		if len(prefix) > matched && strings.HasPrefix(path, prefix) {
			result, matched = t, len(prefix)
		}
	}
	return result
}

func (cr *CacheRouter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch t := cr.cacheTime(c.Request.URL.Path); t {
		case CacheCustom:
		case CacheNoCache:
			c.Header("cache-control", "no-cache")
		default:
			c.Header("cache-control", "private, max-age="+strconv.Itoa(t))
		}
		c.Next()
	}
}
