package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Origins is a browser origin allow-list. "*" admits every origin.
type Origins struct {
	any     bool
	allowed map[string]struct{}
}

func NewOrigins(origins []string) Origins {
	o := Origins{allowed: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			o.any = true
			continue
		}
		if origin != "" {
			o.allowed[origin] = struct{}{}
		}
	}
	return o
}

func (o Origins) Allowed(origin string) bool {
	if o.any {
		return true
	}
	_, ok := o.allowed[origin]
	return ok
}

// CheckRequest suits websocket.Upgrader.CheckOrigin. Requests without an
// Origin header come from non-browser clients and are accepted.
func (o Origins) CheckRequest(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || o.Allowed(origin)
}

func CORS(origins Origins) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" && origins.Allowed(origin) {
			if origins.any {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
