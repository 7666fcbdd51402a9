package web

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"photoman/auth"
	"photoman/backend"
	"photoman/handlers"
	"photoman/logger"
	"photoman/utils"
)

// VideoList is the JSON form of the "Your Videos" panel
func (h *Handlers) VideoList(c *gin.Context, _ *auth.Session, user *backend.User) {
	videos, err := h.Backend.Videos(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusBadGateway, handlers.Response{Error: errorMessage(err, msgServerError)})
		return
	}
	if videos == nil {
		videos = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

// VideoDownload streams a rendered video from the backend, inline for the
// preview player or as an attachment
func (h *Handlers) VideoDownload(c *gin.Context, _ *auth.Session, user *backend.User) {
	name := c.Param("name")
	if name == "" || name != utils.CleanFileName(name) {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	stream, err := h.Backend.Download(c.Request.Context(), user.ID, name)
	if err != nil {
		if re, ok := backend.IsRejected(err); ok && re.Status == http.StatusNotFound {
			c.JSON(http.StatusNotFound, notFound)
			return
		}
		log := logger.Get()
		log.Warn().Err(err).Str("video", name).Msg("download")
		c.JSON(http.StatusBadGateway, serverError)
		return
	}
	defer stream.Body.Close()

	contentType := stream.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	disposition := "attachment"
	if c.Query("inline") == "1" {
		disposition = "inline"
	}
	c.Header("cache-control", "private, max-age=3600")
	c.DataFromReader(http.StatusOK, stream.ContentLength, contentType, stream.Body, map[string]string{
		"Content-Disposition": mime.FormatMediaType(disposition, map[string]string{"filename": name}),
	})
}
