package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/envelope"
	"wiselib/api/internal/middleware"
	"wiselib/api/internal/scanner"
	"wiselib/api/internal/service"
)

type kioskRequest struct {
	Payload string `json:"qrData"`
	UserID  string `json:"userId"`
}

func (r kioskRequest) input() service.KioskInput {
	return service.KioskInput{Payload: r.Payload, UserID: r.UserID}
}

// KioskVerify answers the scanner station with the identity behind a
// decoded payload.
func (h HandlerSet) KioskVerify(c *gin.Context) {
	var req verifyRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.QR.Verify(c.Request.Context(), req.Payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	match := scanner.Match{Variant: res.Variant.String()}
	if res.Variant == envelope.VariantBook {
		match.BookID = res.Book.ID
	} else {
		match.UserID = res.User.ID
		match.FullName = res.User.FullName
		match.UserType = string(res.User.Type)
	}
	c.JSON(http.StatusOK, match)
}

func (h HandlerSet) KioskEnter(c *gin.Context) {
	var req kioskRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.svc.Library.Enter(c.Request.Context(), req.input())
	if err != nil {
		if errors.Is(err, service.ErrAlreadyInside) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_inside",
				"message": err.Error(),
				"session": newLibrarySessionResponse(session),
			})
			return
		}
		h.fail(c, err)
		return
	}
	h.kioskLog(c, "entry", session.UserID)
	h.refreshStats(c)
	c.JSON(http.StatusCreated, newLibrarySessionResponse(session))
}

func (h HandlerSet) KioskExit(c *gin.Context) {
	var req kioskRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.svc.Library.Exit(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.kioskLog(c, "exit", session.UserID)
	h.refreshStats(c)
	c.JSON(http.StatusOK, newLibrarySessionResponse(session))
}

// KioskScan toggles the visitor between inside and outside.
func (h HandlerSet) KioskScan(c *gin.Context) {
	var req kioskRequest
	if !bindJSON(c, &req) {
		return
	}
	session, entered, err := h.svc.Library.Scan(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	action := "exit"
	if entered {
		action = "entry"
	}
	h.kioskLog(c, action, session.UserID)
	h.refreshStats(c)
	c.JSON(http.StatusOK, gin.H{"action": action, "session": newLibrarySessionResponse(session)})
}

func (h HandlerSet) kioskLog(c *gin.Context, action, userID string) {
	device, _ := c.Get(middleware.KioskDeviceKey)
	h.log.Info().
		Str("action", action).
		Str("user_id", userID).
		Interface("device", device).
		Msg("kiosk scan")
}

func (h HandlerSet) LibraryInside(c *gin.Context) {
	items, err := h.svc.Library.Inside(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": newLibrarySessionResponses(items), "count": len(items)})
}

func (h HandlerSet) LibrarySessions(c *gin.Context) {
	items, err := h.svc.Library.Recent(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": newLibrarySessionResponses(items)})
}
