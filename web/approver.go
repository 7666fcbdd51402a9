package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	"photoman/auth"
	"photoman/backend"
	"photoman/logger"
	"photoman/metrics"
	"photoman/models"
	"photoman/processing"
	"photoman/utils"
	"photoman/workingset"
)

const (
	recentApprovals = 5

	msgApproved = "Photos approved and uploaded!"
)

type reviewPhotoView struct {
	ID         string
	URL        string
	Adjustment processing.Adjustment
}

type adjustView struct {
	ID         string
	Adjustment processing.Adjustment
}

type SelectUserForm struct {
	UserID uint64 `form:"user_id" validate:"required,gt=0"`
	Name   string `form:"name" validate:"max=200"`
}

type SelectFolderForm struct {
	Folder string `form:"folder" validate:"required,max=255"`
}

type AdjustForm struct {
	Brightness float64 `form:"brightness"`
	Contrast   float64 `form:"contrast"`
	Zoom       float64 `form:"zoom"`
}

func (f AdjustForm) Adjustment() processing.Adjustment {
	return processing.Adjustment{Brightness: f.Brightness, Contrast: f.Contrast, Zoom: f.Zoom}
}

func (h *Handlers) ApproverView(c *gin.Context, s *auth.Session, user *backend.User) {
	log := logger.Get()
	ctx := c.Request.Context()
	data := gin.H{
		"title": "Approver",
		"user":  user,
		"error": "",
	}
	users, err := h.Backend.Users(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("get_users")
		data["error"] = errorMessage(err, "Could not load users.")
	}
	if users == nil {
		users = []backend.UserSummary{}
	}
	data["users"] = users

	state := h.Store.Review(s.Workspace()).State()
	data["review"] = state
	photos := make([]reviewPhotoView, 0, len(state.Photos))
	for _, p := range state.Photos {
		adj, ok := state.Adjustments[p.ID]
		if !ok {
			adj = processing.DefaultAdjustment
		}
		photos = append(photos, reviewPhotoView{ID: p.ID.String(), URL: p.URL, Adjustment: adj})
	}
	data["photos"] = photos

	if state.UserID != 0 && h.Submissions != nil {
		recent, err := h.Submissions.Recent(ctx, state.UserID, models.SubmissionApproval, recentApprovals)
		if err != nil {
			log.Warn().Err(err).Msg("recent approvals")
		}
		data["recent"] = recent
	}

	if id, err := uuid.Parse(c.Query("edit")); err == nil {
		for _, p := range photos {
			if p.ID == id.String() {
				// the dialog starts from what was stored for this photo
				data["edit"] = &adjustView{ID: p.ID, Adjustment: p.Adjustment}
				break
			}
		}
	}
	render(c, http.StatusOK, "approver.tmpl", s, data)
}

// SelectUser makes user_id the reviewed user and loads their folders
func (h *Handlers) SelectUser(c *gin.Context, s *auth.Session, _ *backend.User) {
	var form SelectUserForm
	if err := c.ShouldBindWith(&form, binding.Form); err != nil || validate.Struct(&form) != nil {
		s.AddFlash(auth.FlashError, "Please select a user.")
		redirect(c, "/approver")
		return
	}
	review := h.Store.Review(s.Workspace())
	if err := review.SelectUser(form.UserID, form.Name); err != nil {
		s.AddFlash(auth.FlashError, msgBusy)
		redirect(c, "/approver")
		return
	}
	folders, err := h.Backend.Folders(c.Request.Context(), form.UserID)
	if err != nil {
		log := logger.Get()
		log.Warn().Err(err).Uint64("user_id", form.UserID).Msg("get_folders")
		s.AddFlash(auth.FlashError, errorMessage(err, "Could not load folders."))
	} else {
		review.SetFolders(form.UserID, folders)
	}
	redirect(c, "/approver")
}

// SelectFolder loads the photos of one of the selected user's folders
func (h *Handlers) SelectFolder(c *gin.Context, s *auth.Session, _ *backend.User) {
	var form SelectFolderForm
	if err := c.ShouldBindWith(&form, binding.Form); err != nil || validate.Struct(&form) != nil {
		s.AddFlash(auth.FlashError, "Please select a folder.")
		redirect(c, "/approver")
		return
	}
	review := h.Store.Review(s.Workspace())
	state := review.State()
	if state.UserID == 0 {
		s.AddFlash(auth.FlashError, "Please select a user first.")
		redirect(c, "/approver")
		return
	}
	if !slices.Contains(state.Folders, form.Folder) {
		s.AddFlash(auth.FlashError, "This folder is not available.")
		redirect(c, "/approver")
		return
	}
	if err := review.SelectFolder(form.Folder); err != nil {
		s.AddFlash(auth.FlashError, msgBusy)
		redirect(c, "/approver")
		return
	}
	urls, err := h.Backend.Photos(c.Request.Context(), state.UserID, form.Folder)
	if err != nil {
		log := logger.Get()
		log.Warn().Err(err).Uint64("user_id", state.UserID).Str("folder", form.Folder).Msg("get_photos")
		s.AddFlash(auth.FlashError, errorMessage(err, "Could not load photos."))
	} else {
		review.SetPhotos(state.UserID, form.Folder, urls)
	}
	redirect(c, "/approver")
}

// ReviewPhotoView proxies a backend photo. With preview=1 it is rendered
// with its adjustment, query values override the stored ones.
func (h *Handlers) ReviewPhotoView(c *gin.Context, s *auth.Session, _ *backend.User) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	review := h.Store.Review(s.Workspace())
	photo, err := review.Photo(id)
	if err != nil {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	data, contentType, err := h.Backend.FetchPhoto(c.Request.Context(), photo.URL)
	if err != nil {
		log := logger.Get()
		log.Warn().Err(err).Str("url", photo.URL).Msg("fetch photo")
		c.JSON(http.StatusBadGateway, serverError)
		return
	}
	c.Header("cache-control", "private, max-age=3600")

	if c.Query("preview") == "1" {
		stored := review.Adjustment(id)
		adj := processing.Adjustment{
			Brightness: utils.StringToFloat64(c.Query("brightness"), stored.Brightness),
			Contrast:   utils.StringToFloat64(c.Query("contrast"), stored.Contrast),
			Zoom:       utils.StringToFloat64(c.Query("zoom"), stored.Zoom),
		}.Normalized()
		if err = adj.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, badRequest)
			return
		}
		if data, err = exportAdjusted(data, adj, "preview"); err != nil {
			c.JSON(http.StatusUnprocessableEntity, serverError)
			return
		}
		contentType = "image/jpeg"
	}
	if c.Query("thumb") == "1" {
		var thumb bytes.Buffer
		if _, err = processing.CreateThumb(thumbSize, bytes.NewReader(data), &thumb); err != nil {
			c.JSON(http.StatusUnprocessableEntity, serverError)
			return
		}
		data, contentType = thumb.Bytes(), "image/jpeg"
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	c.Data(http.StatusOK, contentType, data)
}

// exportAdjusted renders the photo the way it is approved: from the top-left
// corner, natural size divided by zoom, then brightness and contrast
func exportAdjusted(data []byte, adj processing.Adjustment, op string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.RenderDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()
	img, _, err := processing.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return processing.Export(img, img.Bounds(), adj.Zoom, adj.Filter())
}

func (h *Handlers) AdjustPhoto(c *gin.Context, s *auth.Session, _ *backend.User) {
	id, ok := parseID(c)
	if !ok {
		redirect(c, "/approver")
		return
	}
	var form AdjustForm
	if err := c.ShouldBindWith(&form, binding.Form); err != nil {
		s.AddFlash(auth.FlashError, "Invalid adjustment.")
		redirect(c, "/approver?edit="+id.String())
		return
	}
	err := h.Store.Review(s.Workspace()).Adjust(id, form.Adjustment())
	switch {
	case err == nil:
		redirect(c, "/approver")
		return
	case errors.Is(err, processing.ErrInvalidAdjustment):
		s.AddFlash(auth.FlashError, "Brightness and contrast must be between 0.5 and 2, zoom between 0.1 and 3.")
		redirect(c, "/approver?edit="+id.String())
		return
	case errors.Is(err, workingset.ErrSubmitting):
		s.AddFlash(auth.FlashError, msgBusy)
	default:
		s.AddFlash(auth.FlashError, "This photo is no longer in the list.")
	}
	redirect(c, "/approver")
}

// DeleteReviewPhoto only drops the photo from the list, it is not approved
func (h *Handlers) DeleteReviewPhoto(c *gin.Context, s *auth.Session, _ *backend.User) {
	id, ok := parseID(c)
	if !ok {
		redirect(c, "/approver")
		return
	}
	if err := h.Store.Review(s.Workspace()).Delete(id); errors.Is(err, workingset.ErrSubmitting) {
		s.AddFlash(auth.FlashError, msgBusy)
	}
	redirect(c, "/approver")
}

// Approve renders every remaining photo with its adjustment and sends them,
// in order, to the backend in one request
func (h *Handlers) Approve(c *gin.Context, s *auth.Session, user *backend.User) {
	workspace := s.Workspace()
	release, ok := h.acquire(c, s, "approve:"+workspace)
	if !ok {
		redirect(c, "/approver")
		return
	}
	defer release()

	review := h.Store.Review(workspace)
	approval, err := review.BeginApprove()
	if err != nil {
		if errors.Is(err, workingset.ErrEmpty) {
			s.AddFlash(auth.FlashError, "There are no photos to approve.")
		} else {
			s.AddFlash(auth.FlashError, msgBusy)
		}
		redirect(c, "/approver")
		return
	}
	log := logger.Get().With().
		Str("workspace", workspace).
		Uint64("user_id", approval.UserID).
		Str("folder", approval.Folder).
		Logger()

	ctx := c.Request.Context()
	parts := make([]backend.Part, 0, len(approval.Items))
	for i, item := range approval.Items {
		var data []byte
		data, _, err = h.Backend.FetchPhoto(ctx, item.Photo.URL)
		if err == nil {
			data, err = exportAdjusted(data, item.Adjustment, "approve")
		}
		if err != nil {
			err = fmt.Errorf("photo %d: %w", i+1, err)
			break
		}
		parts = append(parts, backend.Part{
			FileName:    fmt.Sprintf("photo_%d.jpg", i),
			ContentType: "image/jpeg",
			Body:        bytes.NewReader(data),
		})
	}
	if err == nil {
		err = h.Backend.ApprovePhotos(ctx, approval.UserID, approval.Folder, parts)
	}
	review.EndApprove(err == nil)

	sub := &models.Submission{
		Kind:       models.SubmissionApproval,
		UserID:     approval.UserID,
		ActorEmail: user.Email,
		Folder:     approval.Folder,
		PhotoCount: len(approval.Items),
		Success:    err == nil,
	}
	if err != nil {
		sub.Error = err.Error()
	}
	h.record(ctx, sub)

	if err != nil {
		log.Error().Err(err).Msg("approval failed")
		s.AddFlash(auth.FlashError, "Approval failed: "+errorMessage(err, err.Error()))
		redirect(c, "/approver")
		return
	}
	log.Info().Int("photos", len(approval.Items)).Msg("photos approved")
	s.AddFlash(auth.FlashInfo, msgApproved)

	// the backend consumed the folder
	if folders, err := h.Backend.Folders(ctx, approval.UserID); err == nil {
		review.SetFolders(approval.UserID, folders)
	} else {
		log.Warn().Err(err).Msg("get_folders after approval")
	}
	if h.Notifier != nil {
		h.Notifier.Notify(approval.UserID)
	}
	redirect(c, "/approver")
}
