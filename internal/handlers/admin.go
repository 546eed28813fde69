package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/models"
	"wiselib/api/internal/service"
)

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	desc, _ := strconv.ParseBool(c.Query("desc"))
	users, err := h.svc.Users.List(c.Request.Context(), service.ListUsersInput{
		Type:   models.UserType(c.Query("type")),
		Search: c.Query("search"),
		SortBy: c.Query("sort"),
		Desc:   desc,
		Limit:  queryInt(c, "limit", 0),
		Offset: queryInt(c, "offset", 0),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]userResponse, 0, len(users))
	for _, u := range users {
		items = append(items, newUserResponse(u))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) AdminGetUser(c *gin.Context) {
	user, err := h.svc.Users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

type activeRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h HandlerSet) AdminSetActive(c *gin.Context) {
	var req activeRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.svc.Users.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h HandlerSet) AdminSetQRActive(c *gin.Context) {
	var req activeRequest
	if !bindJSON(c, &req) {
		return
	}
	id := c.Param("id")
	if err := h.svc.QR.SetActive(c.Request.Context(), id, *req.Active); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": id, "qrCodeActive": *req.Active})
}

func (h HandlerSet) AdminDeleteUser(c *gin.Context) {
	admin, ok := currentUser(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if id == admin.ID {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot_delete_self"})
		return
	}
	if err := h.svc.Users.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info().Str("user_id", id).Str("admin_id", admin.ID).Msg("user deleted")
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) AdminUserActivity(c *gin.Context) {
	items, err := h.svc.Activity.List(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": newActivityResponses(items)})
}

func (h HandlerSet) MyActivity(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.svc.Activity.List(c.Request.Context(), user.ID, queryInt(c, "limit", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": newActivityResponses(items)})
}

type profileRequest struct {
	FirstName  *string `json:"firstName"`
	MiddleName *string `json:"middleName"`
	LastName   *string `json:"lastName"`
	Suffix     *string `json:"suffix"`
	Email      *string `json:"email"`
	Course     *string `json:"course"`
	YearLevel  *string `json:"yearLevel"`
	Section    *string `json:"section"`
	Department *string `json:"department"`
	Position   *string `json:"position"`
	Phone      *string `json:"phone"`
	Address    *string `json:"address"`
	Gender     *string `json:"gender"`
	Birthdate  *string `json:"birthdate"`
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.svc.Users.UpdateProfile(c.Request.Context(), user.ID, service.ProfileInput{
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		Suffix:     req.Suffix,
		Email:      req.Email,
		Course:     req.Course,
		YearLevel:  req.YearLevel,
		Section:    req.Section,
		Department: req.Department,
		Position:   req.Position,
		Phone:      req.Phone,
		Address:    req.Address,
		Gender:     req.Gender,
		Birthdate:  req.Birthdate,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(updated))
}

func (h HandlerSet) Stats(c *gin.Context) {
	var (
		stats service.Stats
		err   error
	)
	if c.Query("refresh") == "true" {
		stats, err = h.svc.Stats.Refresh(c.Request.Context(), false)
	} else {
		stats, err = h.svc.Stats.Live(c.Request.Context())
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
