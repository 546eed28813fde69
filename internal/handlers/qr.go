package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/envelope"
	"wiselib/api/internal/service"
)

const imageLinkTTL = 10 * time.Minute

type scanResponse struct {
	Variant string        `json:"variant"`
	User    *userResponse `json:"user,omitempty"`
	Book    *bookResponse `json:"book,omitempty"`
	AgeDays int           `json:"ageDays,omitempty"`
}

func newScanResponse(res service.ScanResult) scanResponse {
	out := scanResponse{Variant: res.Variant.String()}
	switch res.Variant {
	case envelope.VariantBook:
		b := newBookResponse(res.Book)
		out.Book = &b
	default:
		u := newUserResponse(res.User)
		out.User = &u
		out.AgeDays = int(res.Age / (24 * time.Hour))
	}
	return out
}

func (h HandlerSet) MyQRCode(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	png, err := h.svc.QR.Image(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":       user.ID,
		"payload":      user.QRCodeData,
		"active":       user.QRCodeActive,
		"generatedAt":  user.QRCodeGeneratedAt,
		"image":        "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		"imageLink":    h.svc.QR.ImageLink(user.ID, imageLinkTTL),
		"linkLifetime": imageLinkTTL.String(),
	})
}

func (h HandlerSet) DownloadQRCode(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	png, err := h.svc.QR.Download(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-qr.png"`, user.ID))
	c.Data(http.StatusOK, "image/png", png)
}

func (h HandlerSet) RegenerateQRCode(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	code, err := h.svc.QR.Regenerate(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, qrCodeBody(code))
}

func (h HandlerSet) AdminGenerateQRCode(c *gin.Context) {
	code, err := h.svc.QR.Generate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, qrCodeBody(code))
}

func qrCodeBody(code service.QRCode) gin.H {
	return gin.H{
		"userId":      code.UserID,
		"payload":     code.Payload,
		"generatedAt": code.GeneratedAt,
		"image":       "data:image/png;base64," + base64.StdEncoding.EncodeToString(code.PNG),
	}
}

// SignedQRImage serves a badge image to holders of a signed link.
func (h HandlerSet) SignedQRImage(c *gin.Context) {
	id := c.Param("id")
	if !h.svc.QR.VerifyImageLink(id, c.Query("exp"), c.Query("sig")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid_signature"})
		return
	}
	png, err := h.svc.QR.Image(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=60")
	c.Data(http.StatusOK, "image/png", png)
}

type verifyRequest struct {
	Payload string `json:"qrData" binding:"required"`
}

func (h HandlerSet) VerifyQRCode(c *gin.Context) {
	var req verifyRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.QR.Verify(c.Request.Context(), req.Payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newScanResponse(res))
}

func (h HandlerSet) BookQRCode(c *gin.Context) {
	code, err := h.svc.QR.BookCode(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if c.Query("format") == "png" {
		c.Data(http.StatusOK, "image/png", code.PNG)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payload": code.Payload,
		"image":   "data:image/png;base64," + base64.StdEncoding.EncodeToString(code.PNG),
	})
}
