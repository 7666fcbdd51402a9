package auth

import (
	"encoding/json"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"photoman/backend"
)

const (
	userKey      = "user"
	approverKey  = "approver"
	workspaceKey = "workspace"
)

// Flash kinds, rendered with matching styles
const (
	FlashInfo  = "info"
	FlashError = "error"
)

type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type Session struct {
	sessions.Session
}

func LoadSession(c *gin.Context) *Session {
	return &Session{
		Session: sessions.Default(c),
	}
}

// User returns the logged in user, ok=false for anonymous sessions
func (s *Session) User() (user backend.User, ok bool) {
	raw, _ := s.Get(userKey).(string)
	if raw == "" {
		return user, false
	}
	if json.Unmarshal([]byte(raw), &user) != nil || user.ID == 0 {
		return backend.User{}, false
	}
	return user, true
}

func (s *Session) IsApprover() bool {
	v, _ := s.Get(approverKey).(bool)
	return v
}

func (s *Session) Workspace() string {
	v, _ := s.Get(workspaceKey).(string)
	return v
}

// Login starts a fresh session for user with a new workspace
func (s *Session) Login(user backend.User, approver bool) (workspace string, err error) {
	raw, err := json.Marshal(user)
	if err != nil {
		return "", err
	}
	workspace = uuid.NewString()
	s.Clear()
	s.Set(userKey, string(raw))
	s.Set(approverKey, approver)
	s.Set(workspaceKey, workspace)
	return workspace, s.Save()
}

// Logout clears the session and expires the cookie
func (s *Session) Logout() error {
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	return s.Save()
}

func (s *Session) AddFlash(kind, message string) {
	raw, _ := json.Marshal(Flash{Kind: kind, Message: message})
	s.Session.AddFlash(string(raw))
	_ = s.Save()
}

// Flashes pops pending flashes
func (s *Session) Flashes() (result []Flash) {
	for _, f := range s.Session.Flashes() {
		raw, _ := f.(string)
		var flash Flash
		if json.Unmarshal([]byte(raw), &flash) == nil {
			result = append(result, flash)
		}
	}
	if len(result) > 0 {
		_ = s.Save()
	}
	return
}
