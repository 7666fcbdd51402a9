package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"photoman/backend"
)

func testEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("token", cookie.NewStore([]byte("test-secret"))))
	r.GET("/as/:role", func(c *gin.Context) {
		s := LoadSession(c)
		user := backend.User{ID: 4, FirstName: "Ann", Email: "ann@x.y"}
		if _, err := s.Login(user, c.Param("role") == "approver"); err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.GET("/out", func(c *gin.Context) {
		_ = LoadSession(c).Logout()
		c.Status(http.StatusNoContent)
	})
	router := Router{Base: r}
	ok := func(c *gin.Context, s *Session, user *backend.User) {
		c.String(http.StatusOK, "%d:%s:%v", user.ID, user.FirstName, s.IsApprover())
	}
	router.GET("/upload", ok, RequireUser)
	router.GET("/approver", ok, RequireApprover)
	return r
}

func get(r http.Handler, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func loginAs(t *testing.T, r http.Handler, role string) []*http.Cookie {
	t.Helper()
	w := get(r, "/as/"+role, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("login as %s: status %d", role, w.Code)
	}
	return w.Result().Cookies()
}

func TestRouter_Gates(t *testing.T) {
	r := testEngine()
	user := loginAs(t, r, "user")
	approver := loginAs(t, r, "approver")

	tests := []struct {
		name     string
		path     string
		cookies  []*http.Cookie
		wantCode int
		wantTo   string
		wantBody string
	}{
		{"anonymous upload", "/upload", nil, http.StatusSeeOther, "/", ""},
		{"anonymous approver", "/approver", nil, http.StatusSeeOther, "/", ""},
		{"anonymous json", "/upload?format=json", nil, http.StatusUnauthorized, "", ""},
		{"user upload", "/upload", user, http.StatusOK, "", "4:Ann:false"},
		{"user on approver screen", "/approver", user, http.StatusSeeOther, "/upload", ""},
		{"approver", "/approver", approver, http.StatusOK, "", "4:Ann:true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.path, tt.cookies)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantTo != "" && w.Header().Get("Location") != tt.wantTo {
				t.Errorf("Location = %q, want %q", w.Header().Get("Location"), tt.wantTo)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestSession_Logout(t *testing.T) {
	r := testEngine()
	cookies := loginAs(t, r, "user")
	w := get(r, "/out", cookies)
	after := w.Result().Cookies()
	if len(after) == 0 || after[0].MaxAge >= 0 {
		t.Fatalf("logout should expire the cookie, got %+v", after)
	}
	if w = get(r, "/upload", after); w.Code != http.StatusSeeOther {
		t.Errorf("after logout: status %d", w.Code)
	}
}

func TestSession_Flashes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("token", cookie.NewStore([]byte("test-secret"))))
	r.GET("/add", func(c *gin.Context) {
		LoadSession(c).AddFlash(FlashInfo, "Welcome, Ann!")
		c.Status(http.StatusNoContent)
	})
	r.GET("/show", func(c *gin.Context) {
		c.JSON(http.StatusOK, LoadSession(c).Flashes())
	})

	w := get(r, "/add", nil)
	cookies := w.Result().Cookies()
	w = get(r, "/show", cookies)
	if w.Body.String() != `[{"kind":"info","message":"Welcome, Ann!"}]` {
		t.Fatalf("flashes = %s", w.Body.String())
	}
	if w = get(r, "/show", w.Result().Cookies()); w.Body.String() != "null" {
		t.Errorf("flashes should be consumed, got %s", w.Body.String())
	}
}
