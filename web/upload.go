package web

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
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
	maxPhotoSize = 32 << 20
	thumbSize    = 256

	msgUploaded     = "Your photos are successfully uploaded.\nOnce approved, you will see the video in 'Your Videos' section."
	msgUploadFailed = "Upload failed"
	msgNotAnImage   = "The selected file is not a supported image."
	msgTooLarge     = "The selected image has too many pixels."
)

type photoView struct {
	ID      string
	Name    string
	Version int
}

type cropView struct {
	ID      string
	Name    string
	Version int
	Zoom    float64
	X       int
	Y       int
	Width   int
	Height  int
}

type CropForm struct {
	Zoom float64 `form:"zoom" validate:"gte=0.1,lte=3"`
	X    int     `form:"x"`
	Y    int     `form:"y"`
}

func limitMessage(limit int) string {
	return fmt.Sprintf("You can upload up to %d photos only", limit)
}

func (h *Handlers) UploadView(c *gin.Context, s *auth.Session, user *backend.User) {
	log := logger.Get()
	up := h.Store.Upload(s.Workspace())
	photos := up.Photos()
	views := make([]photoView, 0, len(photos))
	for _, p := range photos {
		views = append(views, photoView{ID: p.ID.String(), Name: p.Name, Version: p.Version})
	}
	data := gin.H{
		"title":       "Upload",
		"user":        user,
		"photos":      views,
		"limit":       up.Limit(),
		"full":        len(photos) >= up.Limit(),
		"submitting":  up.Submitting(),
		"videos":      []string{},
		"videosError": "",
	}

	videos, err := h.Backend.Videos(c.Request.Context(), user.ID)
	if err != nil {
		log.Warn().Err(err).Uint64("user_id", user.ID).Msg("videos")
		data["videosError"] = "Could not load your videos."
	} else if videos != nil {
		data["videos"] = videos
	}

	if id, err := uuid.Parse(c.Query("edit")); err == nil {
		if p, err := up.Get(id); err == nil {
			if v, err := h.cropView(c, p); err == nil {
				data["edit"] = v
			} else {
				log.Warn().Err(err).Str("photo", p.ID.String()).Msg("edit dialog")
			}
		}
	}
	if name := c.Query("video"); name != "" && name == utils.CleanFileName(name) {
		data["video"] = name
	}
	render(c, http.StatusOK, "upload.tmpl", s, data)
}

func (h *Handlers) cropView(c *gin.Context, p workingset.Photo) (*cropView, error) {
	var buf bytes.Buffer
	if _, err := h.Storage.Load(p.Path, &buf); err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(&buf)
	if err != nil {
		return nil, err
	}
	zoom := utils.StringToFloat64(c.Query("zoom"), 1)
	if zoom < processing.MinZoom || zoom > processing.MaxZoom {
		zoom = 1
	}
	x, _ := strconv.Atoi(c.Query("x"))
	y, _ := strconv.Atoi(c.Query("y"))
	return &cropView{
		ID:      p.ID.String(),
		Name:    p.Name,
		Version: p.Version,
		Zoom:    zoom,
		X:       x,
		Y:       y,
		Width:   cfg.Width,
		Height:  cfg.Height,
	}, nil
}

func (h *Handlers) AddPhoto(c *gin.Context, s *auth.Session, user *backend.User) {
	log := logger.Get().With().Str("workspace", s.Workspace()).Logger()
	up := h.Store.Upload(s.Workspace())
	if up.Len() >= up.Limit() {
		s.AddFlash(auth.FlashError, limitMessage(up.Limit()))
		redirect(c, "/upload")
		return
	}
	if up.Submitting() {
		s.AddFlash(auth.FlashError, msgBusy)
		redirect(c, "/upload")
		return
	}
	fh, err := c.FormFile("photo")
	if err != nil {
		s.AddFlash(auth.FlashError, "Please choose a photo.")
		redirect(c, "/upload")
		return
	}
	if fh.Size > maxPhotoSize {
		s.AddFlash(auth.FlashError, "The photo is too large.")
		redirect(c, "/upload")
		return
	}
	file, err := fh.Open()
	if err != nil {
		log.Error().Err(err).Msg("open upload")
		s.AddFlash(auth.FlashError, msgServerError)
		redirect(c, "/upload")
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxPhotoSize))
	file.Close()
	if err != nil {
		log.Error().Err(err).Msg("read upload")
		s.AddFlash(auth.FlashError, msgServerError)
		redirect(c, "/upload")
		return
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		s.AddFlash(auth.FlashError, msgNotAnImage)
		redirect(c, "/upload")
		return
	}
	if err = processing.CheckPixels(cfg.Width, cfg.Height); err != nil {
		log.Warn().Err(err).Str("name", fh.Filename).Msg("upload rejected")
		s.AddFlash(auth.FlashError, msgTooLarge)
		redirect(c, "/upload")
		return
	}

	path := utils.StagingPath(s.Workspace(), uuid.NewString(), 1)
	size, err := h.Storage.Save(path, bytes.NewReader(data))
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("save photo")
		s.AddFlash(auth.FlashError, msgServerError)
		redirect(c, "/upload")
		return
	}
	photo, err := up.Add(workingset.Photo{
		Name:        utils.CleanFileName(fh.Filename),
		ContentType: "image/" + format,
		Path:        path,
		Size:        size,
	})
	if err != nil {
		_ = h.Storage.Delete(path)
		if errors.Is(err, workingset.ErrLimitReached) {
			s.AddFlash(auth.FlashError, limitMessage(up.Limit()))
		} else {
			s.AddFlash(auth.FlashError, msgBusy)
		}
		redirect(c, "/upload")
		return
	}
	metrics.ActiveWorkspaces.Set(float64(h.Store.Count()))
	log.Debug().Str("photo", photo.ID.String()).Int64("size", size).Msg("photo added")
	// the crop dialog opens right away for a new photo
	redirect(c, "/upload?edit="+photo.ID.String())
}

// PhotoView serves a staged photo: as stored, as a thumbnail, or as a crop
// preview when zoom/x/y are given
func (h *Handlers) PhotoView(c *gin.Context, s *auth.Session, _ *backend.User) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	p, err := h.Store.Upload(s.Workspace()).Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	var buf bytes.Buffer
	if _, err = h.Storage.Load(p.Path, &buf); err != nil {
		log := logger.Get()
		log.Error().Err(err).Str("path", p.Path).Msg("load photo")
		c.JSON(http.StatusInternalServerError, serverError)
		return
	}
	c.Header("cache-control", "private, max-age=3600")

	if c.Query("thumb") == "1" {
		var thumb bytes.Buffer
		if _, err = processing.CreateThumb(thumbSize, &buf, &thumb); err != nil {
			c.JSON(http.StatusUnprocessableEntity, serverError)
			return
		}
		c.Data(http.StatusOK, "image/jpeg", thumb.Bytes())
		return
	}
	if c.Query("zoom") == "" && c.Query("x") == "" && c.Query("y") == "" {
		c.Data(http.StatusOK, p.ContentType, buf.Bytes())
		return
	}

	var form CropForm
	form.Zoom = 1
	if err = c.ShouldBindWith(&form, binding.Query); err != nil || validate.Struct(&form) != nil {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	out, err := cropPhoto(buf.Bytes(), form, "preview")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, serverError)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", out)
}

// cropPhoto cuts the square the dialog shows
func cropPhoto(data []byte, form CropForm, op string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.RenderDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()
	img, _, err := processing.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	crop := processing.SquareCrop(img.Bounds(), form.Zoom, image.Pt(form.X, form.Y))
	return processing.Export(img, crop, form.Zoom, processing.Filter{Brightness: 1, Contrast: 1})
}

func (h *Handlers) CropPhoto(c *gin.Context, s *auth.Session, _ *backend.User) {
	log := logger.Get().With().Str("workspace", s.Workspace()).Logger()
	id, ok := parseID(c)
	if !ok {
		redirect(c, "/upload")
		return
	}
	up := h.Store.Upload(s.Workspace())
	p, err := up.Get(id)
	if err != nil {
		s.AddFlash(auth.FlashError, "This photo is no longer in your list.")
		redirect(c, "/upload")
		return
	}
	var form CropForm
	if err = c.ShouldBindWith(&form, binding.Form); err != nil || validate.Struct(&form) != nil {
		s.AddFlash(auth.FlashError, "Zoom must be between 0.1 and 3.")
		redirect(c, "/upload?edit="+id.String())
		return
	}
	var buf bytes.Buffer
	if _, err = h.Storage.Load(p.Path, &buf); err != nil {
		log.Error().Err(err).Str("path", p.Path).Msg("load photo")
		s.AddFlash(auth.FlashError, msgServerError)
		redirect(c, "/upload")
		return
	}
	out, err := cropPhoto(buf.Bytes(), form, "crop")
	if err != nil {
		log.Warn().Err(err).Str("photo", id.String()).Msg("crop")
		s.AddFlash(auth.FlashError, "This photo cannot be cropped.")
		redirect(c, "/upload")
		return
	}
	path := utils.StagingPath(s.Workspace(), id.String(), p.Version+1)
	size, err := h.Storage.Save(path, bytes.NewReader(out))
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("save crop")
		s.AddFlash(auth.FlashError, msgServerError)
		redirect(c, "/upload")
		return
	}
	old, err := up.Replace(id, path, "image/jpeg", size)
	if err != nil {
		_ = h.Storage.Delete(path)
		s.AddFlash(auth.FlashError, msgBusy)
		redirect(c, "/upload")
		return
	}
	if err = h.Storage.Delete(old); err != nil {
		log.Warn().Err(err).Str("path", old).Msg("delete replaced photo")
	}
	redirect(c, "/upload")
}

func (h *Handlers) RemovePhoto(c *gin.Context, s *auth.Session, _ *backend.User) {
	id, ok := parseID(c)
	if !ok {
		redirect(c, "/upload")
		return
	}
	p, err := h.Store.Upload(s.Workspace()).Remove(id)
	switch {
	case errors.Is(err, workingset.ErrSubmitting):
		s.AddFlash(auth.FlashError, msgBusy)
	case err == nil:
		h.deletePhotos([]workingset.Photo{p})
	}
	redirect(c, "/upload")
}

// SubmitPhotos sends the whole working set in one multipart request
func (h *Handlers) SubmitPhotos(c *gin.Context, s *auth.Session, user *backend.User) {
	workspace := s.Workspace()
	log := logger.Get().With().Str("workspace", workspace).Uint64("user_id", user.ID).Logger()
	release, ok := h.acquire(c, s, "upload:"+workspace)
	if !ok {
		redirect(c, "/upload")
		return
	}
	defer release()

	up := h.Store.Upload(workspace)
	photos, err := up.BeginSubmit()
	if err != nil {
		if errors.Is(err, workingset.ErrEmpty) {
			s.AddFlash(auth.FlashError, "Add at least one photo first.")
		} else {
			s.AddFlash(auth.FlashError, msgBusy)
		}
		redirect(c, "/upload")
		return
	}

	ctx := c.Request.Context()
	parts := make([]backend.Part, 0, len(photos))
	for _, p := range photos {
		var buf bytes.Buffer
		if _, err = h.Storage.Load(p.Path, &buf); err != nil {
			err = fmt.Errorf("load %s: %w", p.Path, err)
			break
		}
		parts = append(parts, backend.Part{FileName: p.Name, ContentType: p.ContentType, Body: &buf})
	}
	if err == nil {
		err = h.Backend.Upload(ctx, user.ID, parts)
	}
	dropped := up.EndSubmit(err == nil)

	sub := &models.Submission{
		Kind:       models.SubmissionUpload,
		UserID:     user.ID,
		ActorEmail: user.Email,
		PhotoCount: len(photos),
		Success:    err == nil,
	}
	if err != nil {
		sub.Error = err.Error()
	}
	h.record(ctx, sub)

	if err != nil {
		log.Error().Err(err).Int("photos", len(photos)).Msg("upload failed")
		s.AddFlash(auth.FlashError, msgUploadFailed)
		redirect(c, "/upload")
		return
	}
	h.deletePhotos(dropped)
	log.Info().Int("photos", len(photos)).Msg("photos uploaded")
	s.AddFlash(auth.FlashInfo, msgUploaded)
	redirect(c, "/upload")
}
