package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"photoman/auth"
	"photoman/backend"
	"photoman/logger"
)

const (
	RoleUser     = "user"
	RoleApprover = "approver"

	msgLoginFailed   = "Login failed"
	msgNotAnApprover = "You are not authorized as an approver."
)

type LoginForm struct {
	FirstName string `form:"first_name" json:"first_name" validate:"required,max=100"`
	LastName  string `form:"last_name" json:"last_name" validate:"required,max=100"`
	Email     string `form:"email" json:"email" validate:"required,email,max=150"`
	Phone     string `form:"phone" json:"phone" validate:"required,max=30"`
	Role      string `form:"role" json:"role" validate:"oneof=user approver"`
}

func (f *LoginForm) trim() {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = strings.TrimSpace(f.Email)
	f.Phone = strings.TrimSpace(f.Phone)
	if f.Role == "" {
		f.Role = RoleUser
	}
}

func homeFor(s *auth.Session) string {
	if s.IsApprover() {
		return "/approver"
	}
	return "/upload"
}

func (h *Handlers) LoginView(c *gin.Context) {
	session := auth.LoadSession(c)
	if _, ok := session.User(); ok && session.Workspace() != "" {
		redirect(c, homeFor(session))
		return
	}
	renderLogin(c, http.StatusOK, session, LoginForm{Role: RoleUser}, nil, "")
}

func renderLogin(c *gin.Context, status int, s *auth.Session, form LoginForm, errs map[string]string, message string) {
	if errs == nil {
		errs = map[string]string{}
	}
	render(c, status, "login.tmpl", s, gin.H{
		"title":  "Login",
		"form":   form,
		"errors": errs,
		"error":  message,
	})
}

func (h *Handlers) Login(c *gin.Context) {
	session := auth.LoadSession(c)
	log := logger.Get()
	var form LoginForm
	if err := c.ShouldBindWith(&form, binding.Form); err != nil {
		renderLogin(c, http.StatusBadRequest, session, form, nil, "Invalid form")
		return
	}
	form.trim()
	errs, err := validationErrors(&form)
	if err != nil {
		renderLogin(c, http.StatusBadRequest, session, form, nil, "Invalid form")
		return
	}
	if len(errs) > 0 {
		renderLogin(c, http.StatusBadRequest, session, form, errs, "")
		return
	}

	ctx := c.Request.Context()
	user, err := h.Backend.LoginOrRegister(ctx, backend.Identity{
		FirstName: form.FirstName,
		LastName:  form.LastName,
		Email:     form.Email,
		Phone:     form.Phone,
	})
	if err != nil {
		status := http.StatusUnauthorized
		if _, rejected := backend.IsRejected(err); !rejected {
			status = http.StatusBadGateway
			log.Error().Err(err).Msg("login_or_register")
		}
		renderLogin(c, status, session, form, nil, errorMessage(err, msgLoginFailed))
		return
	}

	approver := false
	if form.Role == RoleApprover {
		approver, err = h.Backend.IsApprover(ctx, user.Email)
		if err != nil || !approver {
			if err != nil {
				log.Warn().Err(err).Str("email", user.Email).Msg("approver check")
			}
			// any previous login is gone too
			h.dropWorkspace(session.Workspace())
			session.Clear()
			_ = session.Save()
			renderLogin(c, http.StatusForbidden, session, form, nil, msgNotAnApprover)
			return
		}
	}

	h.dropWorkspace(session.Workspace())
	workspace, err := session.Login(user, approver)
	if err != nil {
		log.Error().Err(err).Msg("session save")
		renderLogin(c, http.StatusInternalServerError, session, form, nil, msgServerError)
		return
	}
	log.Info().Uint64("user_id", user.ID).Bool("approver", approver).Str("workspace", workspace).Msg("login")
	session.AddFlash(auth.FlashInfo, fmt.Sprintf("Welcome, %s!", user.FirstName))
	redirect(c, homeFor(session))
}

func (h *Handlers) Logout(c *gin.Context) {
	session := auth.LoadSession(c)
	h.dropWorkspace(session.Workspace())
	_ = session.Logout()
	redirect(c, "/")
}
