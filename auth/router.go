package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"photoman/backend"
)

// Gate decides who may reach a route
type Gate int

const (
	RequireUser Gate = iota
	RequireApprover
)

// HandlerFunc gets the session that passed the gate and its user
type HandlerFunc func(c *gin.Context, s *Session, user *backend.User)

// Router is a wrapper that adds access checks + session pre-loading
type Router struct {
	Base gin.IRoutes
}

func (cr *Router) baseExec(c *gin.Context, handler HandlerFunc, gate Gate) {
	session := LoadSession(c)
	user, ok := session.User()
	if !ok || session.Workspace() == "" {
		deny(c, "/")
		return
	}
	if gate == RequireApprover && !session.IsApprover() {
		deny(c, "/upload")
		return
	}
	handler(c, session, &user)
}

// deny redirects browsers and answers JSON clients with 401
func deny(c *gin.Context, to string) {
	if c.Query("format") == "json" || c.GetHeader("Accept") == "application/json" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "access denied"})
		return
	}
	c.Redirect(http.StatusSeeOther, to)
	c.Abort()
}

func (cr *Router) POST(path string, handler HandlerFunc, gate Gate) {
	cr.Base.POST(path, func(c *gin.Context) {
		cr.baseExec(c, handler, gate)
	})
}

func (cr *Router) GET(path string, handler HandlerFunc, gate Gate) {
	cr.Base.GET(path, func(c *gin.Context) {
		cr.baseExec(c, handler, gate)
	})
}
