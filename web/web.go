package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"photoman/auth"
	"photoman/backend"
	"photoman/guard"
	"photoman/handlers"
	"photoman/logger"
	"photoman/metrics"
	"photoman/models"
	"photoman/storage"
	"photoman/workingset"
)

const (
	msgServerError = "Server error. Please try again."
	msgBusy        = "Please wait, a submission is already in progress."
)

var (
	notFound    = handlers.NotFoundResponse
	badRequest  = handlers.Response{Error: "bad request"}
	serverError = handlers.BackendDownResponse
)

// Backend is the part of backend.Client the screens use
type Backend interface {
	LoginOrRegister(ctx context.Context, id backend.Identity) (backend.User, error)
	IsApprover(ctx context.Context, email string) (bool, error)
	Users(ctx context.Context) ([]backend.UserSummary, error)
	Folders(ctx context.Context, userID uint64) ([]string, error)
	Photos(ctx context.Context, userID uint64, folder string) ([]string, error)
	FetchPhoto(ctx context.Context, photoURL string) ([]byte, string, error)
	Videos(ctx context.Context, userID uint64) ([]string, error)
	Download(ctx context.Context, userID uint64, filename string) (*backend.Stream, error)
	Upload(ctx context.Context, userID uint64, parts []backend.Part) error
	ApprovePhotos(ctx context.Context, userID uint64, folder string, parts []backend.Part) error
}

type SubmissionLog interface {
	Record(ctx context.Context, s *models.Submission) error
	Recent(ctx context.Context, userID uint64, kind string, limit int) ([]models.Submission, error)
}

// Notifier is told when a user's videos may have changed
type Notifier interface {
	Notify(userID uint64)
}

type Handlers struct {
	Backend       Backend
	Store         *workingset.Store
	Storage       storage.StorageAPI
	Guard         guard.Guard
	Submissions   SubmissionLog // optional
	Notifier      Notifier      // optional
	SubmitTimeout time.Duration
}

// Register adds the screens to router
func (h *Handlers) Register(router *gin.Engine) {
	authRouter := &auth.Router{Base: router}

	// Login
	router.GET("/", h.LoginView)
	router.POST("/login", h.Login)
	router.POST("/logout", h.Logout)
	// Uploader
	authRouter.GET("/upload", h.UploadView, auth.RequireUser)
	authRouter.POST("/upload/photos", h.AddPhoto, auth.RequireUser)
	authRouter.GET("/upload/photos/:id", h.PhotoView, auth.RequireUser)
	authRouter.POST("/upload/photos/:id/crop", h.CropPhoto, auth.RequireUser)
	authRouter.POST("/upload/photos/:id/remove", h.RemovePhoto, auth.RequireUser)
	authRouter.POST("/upload/submit", h.SubmitPhotos, auth.RequireUser)
	authRouter.GET("/upload/videos", h.VideoList, auth.RequireUser)
	authRouter.GET("/upload/videos/:name", h.VideoDownload, auth.RequireUser)
	// Approver
	authRouter.GET("/approver", h.ApproverView, auth.RequireApprover)
	authRouter.POST("/approver/user", h.SelectUser, auth.RequireApprover)
	authRouter.POST("/approver/folder", h.SelectFolder, auth.RequireApprover)
	authRouter.GET("/approver/photos/:id", h.ReviewPhotoView, auth.RequireApprover)
	authRouter.POST("/approver/photos/:id/adjust", h.AdjustPhoto, auth.RequireApprover)
	authRouter.POST("/approver/photos/:id/delete", h.DeleteReviewPhoto, auth.RequireApprover)
	authRouter.POST("/approver/approve", h.Approve, auth.RequireApprover)
	// Misc
	router.GET("/robots.txt", DisallowRobots)
	router.NoRoute(h.NotFound)
}

func DisallowRobots(c *gin.Context) {
	c.String(http.StatusOK, "User-agent: *\nDisallow: /\n")
}

func (h *Handlers) NotFound(c *gin.Context) {
	session := auth.LoadSession(c)
	data := gin.H{"title": "Not found"}
	if user, ok := session.User(); ok {
		data["user"] = &user
	}
	render(c, http.StatusNotFound, "not_found.tmpl", session, data)
}

// render pops the flashes into data and writes HTML, or JSON for ?format=json
func render(c *gin.Context, status int, name string, s *auth.Session, data gin.H) {
	if s != nil {
		data["flashes"] = s.Flashes()
	}
	if _, ok := data["user"]; !ok {
		data["user"] = nil
	}
	if c.Query("format") == "json" {
		c.JSON(status, data)
		return
	}
	c.HTML(status, name, data)
}

func redirect(c *gin.Context, to string) {
	c.Redirect(http.StatusSeeOther, to)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	return id, err == nil
}

// errorMessage prefers the backend's own explanation
func errorMessage(err error, fallback string) string {
	if re, ok := backend.IsRejected(err); ok && re.Detail != "" {
		return re.Detail
	}
	if errors.Is(err, backend.ErrUnavailable) {
		return msgServerError
	}
	return fallback
}

func (h *Handlers) record(ctx context.Context, sub *models.Submission) {
	result := "ok"
	if !sub.Success {
		result = "error"
	} else {
		metrics.SubmittedPhotosTotal.WithLabelValues(sub.Kind).Add(float64(sub.PhotoCount))
	}
	metrics.SubmissionsTotal.WithLabelValues(sub.Kind, result).Inc()
	if h.Submissions == nil {
		return
	}
	if err := h.Submissions.Record(ctx, sub); err != nil {
		log := logger.Get()
		log.Error().Err(err).Str("kind", sub.Kind).Msg("cannot record submission")
	}
}

// dropWorkspace forgets the workspace's sets and deletes its staged bytes
func (h *Handlers) dropWorkspace(workspace string) {
	if workspace == "" {
		return
	}
	photos := h.Store.Drop(workspace)
	h.deletePhotos(photos)
	metrics.ActiveWorkspaces.Set(float64(h.Store.Count()))
}

func (h *Handlers) deletePhotos(photos []workingset.Photo) {
	paths := make([]string, 0, len(photos))
	for _, p := range photos {
		paths = append(paths, p.Path)
	}
	if err := storage.DeleteAll(h.Storage, paths...); err != nil {
		log := logger.Get()
		log.Warn().Err(err).Int("count", len(paths)).Msg("cannot delete staged photos")
	}
}

// acquire takes the submit guard, ok=false means a flash was already set
func (h *Handlers) acquire(c *gin.Context, s *auth.Session, key string) (release func(), ok bool) {
	ctx := c.Request.Context()
	token, err := h.Guard.Acquire(ctx, key, h.SubmitTimeout)
	if err != nil {
		if errors.Is(err, guard.ErrBusy) {
			s.AddFlash(auth.FlashError, msgBusy)
		} else {
			log := logger.Get()
			log.Error().Err(err).Str("key", key).Msg("guard")
			s.AddFlash(auth.FlashError, msgServerError)
		}
		return nil, false
	}
	return func() {
		// the request context may be gone by now
		if err := h.Guard.Release(context.Background(), key, token); err != nil {
			log := logger.Get()
			log.Warn().Err(err).Str("key", key).Msg("guard release")
		}
	}, true
}
