package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/service"
)

func (h HandlerSet) UploadAvatar(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	defer file.Close()

	updated, err := h.svc.Users.UploadAvatar(c.Request.Context(), user.ID, service.UploadInput{File: file, Header: header})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("avatar upload failed")
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(updated))
}

func (h HandlerSet) Avatar(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if id != user.ID && !isAdmin(user) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	obj, err := h.svc.Users.Avatar(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if obj.ETag != "" {
		if c.GetHeader("If-None-Match") == obj.ETag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", obj.ETag)
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, obj.ContentType, obj.Data)
}

// DecodeQRImage reads a badge or book label from an uploaded photo.
func (h HandlerSet) DecodeQRImage(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	defer file.Close()

	res, err := h.svc.QR.Decode(c.Request.Context(), service.UploadInput{File: file, Header: header})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newScanResponse(res))
}
