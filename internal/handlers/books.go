package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/models"
	"wiselib/api/internal/service"
)

type bookRequest struct {
	ID       string `json:"id"`
	Title    string `json:"title" binding:"required"`
	Author   string `json:"author"`
	Category string `json:"category"`
	ISBN     string `json:"isbn"`
	Shelf    string `json:"shelf"`
	Copies   int    `json:"copies"`
}

func (r bookRequest) input() service.BookInput {
	return service.BookInput{
		ID:       r.ID,
		Title:    r.Title,
		Author:   r.Author,
		Category: r.Category,
		ISBN:     r.ISBN,
		Shelf:    r.Shelf,
		Copies:   r.Copies,
	}
}

func (h HandlerSet) ListBooks(c *gin.Context) {
	books, err := h.svc.Books.List(c.Request.Context(), c.Query("search"), c.Query("category"))
	if err != nil {
		h.fail(c, err)
		return
	}
	items := make([]bookResponse, 0, len(books))
	for _, b := range books {
		items = append(items, newBookResponse(b))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) GetBook(c *gin.Context) {
	book, err := h.svc.Books.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookResponse(book))
}

func (h HandlerSet) CreateBook(c *gin.Context) {
	var req bookRequest
	if !bindJSON(c, &req) {
		return
	}
	book, err := h.svc.Books.Create(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.refreshStats(c)
	c.JSON(http.StatusCreated, newBookResponse(book))
}

func (h HandlerSet) UpdateBook(c *gin.Context) {
	var req bookRequest
	if !bindJSON(c, &req) {
		return
	}
	book, err := h.svc.Books.Update(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.refreshStats(c)
	c.JSON(http.StatusOK, newBookResponse(book))
}

func (h HandlerSet) DeleteBook(c *gin.Context) {
	if err := h.svc.Books.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.refreshStats(c)
	c.Status(http.StatusNoContent)
}

type borrowRequest struct {
	BookID    string `json:"bookId" binding:"required"`
	StudentID string `json:"studentId"`
	Location  string `json:"location"`
}

// Borrow lends a book. Students borrow for themselves, admins name the
// student.
func (h HandlerSet) Borrow(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req borrowRequest
	if !bindJSON(c, &req) {
		return
	}
	studentID := user.ID
	if isAdmin(user) {
		if req.StudentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "studentId required"})
			return
		}
		studentID = req.StudentID
	}

	loan, err := h.svc.Borrows.Borrow(c.Request.Context(), service.BorrowInput{
		BookID:    req.BookID,
		StudentID: studentID,
		Location:  models.BorrowLocation(req.Location),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.refreshStats(c)
	c.JSON(http.StatusCreated, newLoanResponse(loan))
}

func (h HandlerSet) ReturnBook(c *gin.Context) {
	loan, already, err := h.svc.Borrows.Return(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !already {
		h.refreshStats(c)
	}
	c.JSON(http.StatusOK, gin.H{"loan": newLoanResponse(loan), "alreadyReturned": already})
}

// ListBorrows shows every loan to admins and their own loans to students.
func (h HandlerSet) ListBorrows(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	studentID := user.ID
	if isAdmin(user) {
		studentID = c.Query("studentId")
	}
	loans, err := h.svc.Borrows.List(c.Request.Context(), studentID, c.Query("active") == "true")
	if err != nil {
		h.fail(c, err)
		return
	}
	items := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		items = append(items, newLoanResponse(l))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) Reserve(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	res, err := h.svc.Reservations.Reserve(c.Request.Context(), c.Param("id"), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newReservationResponse(res))
}

func (h HandlerSet) ListReservations(c *gin.Context) {
	list, err := h.svc.Reservations.List(c.Request.Context(), c.Query("bookId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	items := make([]reservationResponse, 0, len(list))
	for _, r := range list {
		items = append(items, newReservationResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) CancelReservation(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.svc.Reservations.Cancel(c.Request.Context(), user, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// refreshStats pushes fresh dashboard figures after a change to the
// catalogue or circulation.
func (h HandlerSet) refreshStats(c *gin.Context) {
	if h.svc.Stats == nil {
		return
	}
	if _, err := h.svc.Stats.Refresh(c.Request.Context(), true); err != nil {
		h.log.Warn().Err(err).Msg("stats refresh failed")
	}
}
