// Package api wires the two HTTP surfaces every node exposes: the
// client-facing service (leader: full RPCs; follower: NOT_LEADER stub) and
// the peer-facing service (register/heartbeat/check-leader/accept-updates/
// update-leader/update-followers).
package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger logs one line per request: method, path, status, latency.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Printf("%s %s %d %s", c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// Recovery converts a panic in a handler into a generic 500 instead of
// crashing the process — the last-resort backstop behind the typed error
// responses every handler returns on its own.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("api: recovered panic in %s %s: %v", c.Request.Method, c.Request.URL.Path, r)
				c.AbortWithStatusJSON(500, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}

// Semaphore bounds the number of requests handled concurrently by this
// router. Requests beyond the limit block until a slot frees.
func Semaphore(n int) gin.HandlerFunc {
	if n <= 0 {
		n = 1
	}
	sem := make(chan struct{}, n)
	return func(c *gin.Context) {
		sem <- struct{}{}
		defer func() { <-sem }()
		c.Next()
	}
}
