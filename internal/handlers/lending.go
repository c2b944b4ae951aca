package handlers

import (
	"fmt"
	"io"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/librarydb/internal/middleware"
	"github.com/localnerve/librarydb/internal/services"
	"github.com/localnerve/librarydb/internal/types"
	"github.com/localnerve/librarydb/internal/utils"
)

// LendingHandler handles request, issue, feedback, purchase and content routes
type LendingHandler struct {
	Lending *services.Lending
}

// RequestInput is the body of a borrow request. IssueTime defaults to the longest loan.
type RequestInput struct {
	BookID    types.FlexInt  `json:"book_id"`
	IssueTime *types.FlexInt `json:"issue_time"`
}

// FeedbackInput is the body of a review
type FeedbackInput struct {
	Feedback string        `json:"feedback"`
	Rating   types.FlexInt `json:"rating"`
}

// pairParams parses the :book and :user route parameters
func pairParams(c *fiber.Ctx) (uint, uint, bool) {
	book, ok := paramID(c, "book")
	if !ok {
		return 0, 0, false
	}
	user, ok := paramID(c, "user")
	return book, user, ok
}

// RequestBook handles POST /api/lending/requests
// @Summary Request a book
// @Description Record a borrow request. A user may hold at most 5 requests and loans together.
// @Tags Lending
// @Accept json
// @Produce json
// @Param body body RequestInput true "Book and loan length in days (1-7)"
// @Success 201 {object} models.BookRequest
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 429 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /lending/requests [post]
func (h *LendingHandler) RequestBook(c *fiber.Ctx) error {
	var in RequestInput
	if err := c.BodyParser(&in); err != nil {
		return badInput(c, "lending", "Invalid input")
	}
	if in.BookID.Int() <= 0 {
		return badInput(c, "lending", "book_id is required")
	}
	days := services.DefaultIssueDays
	if in.IssueTime != nil {
		days = in.IssueTime.Int()
	}

	request, err := h.Lending.RequestBook(c.UserContext(), middleware.IdentityFrom(c), uint(in.BookID.Int()), days)
	if err != nil {
		return respondError(c, err, "lending")
	}
	return utils.SuccessResponse(c, request, fiber.StatusCreated)
}

// ListRequests handles GET /api/lending/requests
// @Summary List requests
// @Description Librarians see every pending request, general users their own
// @Tags Lending
// @Produce json
// @Success 200 {array} services.RequestView
// @Security CookieAuth
// @Router /lending/requests [get]
func (h *LendingHandler) ListRequests(c *fiber.Ctx) error {
	requests, err := h.Lending.ListRequests(c.UserContext(), middleware.IdentityFrom(c))
	if err != nil {
		return respondError(c, err, "lending")
	}
	return utils.SuccessResponse(c, requests, fiber.StatusOK)
}

// IssueBook handles POST /api/lending/requests/:book/:user/issue
// @Summary Issue a book
// @Description Turn a user's pending request into a loan
// @Tags Lending
// @Produce json
// @Param book path int true "Book ID"
// @Param user path int true "User ID"
// @Success 201 {object} models.BookIssue
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /lending/requests/{book}/{user}/issue [post]
func (h *LendingHandler) IssueBook(c *fiber.Ctx) error {
	book, user, ok := pairParams(c)
	if !ok {
		return badInput(c, "lending", "Invalid book or user id")
	}
	issue, err := h.Lending.IssueBook(c.UserContext(), middleware.IdentityFrom(c), book, user)
	if err != nil {
		return respondError(c, err, "lending")
	}
	return utils.SuccessResponse(c, issue, fiber.StatusCreated)
}

// RejectRequest handles DELETE /api/lending/requests/:book/:user
// @Summary Reject a request
// @Tags Lending
// @Produce json
// @Param book path int true "Book ID"
// @Param user path int true "User ID"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /lending/requests/{book}/{user} [delete]
func (h *LendingHandler) RejectRequest(c *fiber.Ctx) error {
	book, user, ok := pairParams(c)
	if !ok {
		return badInput(c, "lending", "Invalid book or user id")
	}
	if err := h.Lending.RejectRequest(c.UserContext(), middleware.IdentityFrom(c), book, user); err != nil {
		return respondError(c, err, "lending")
	}
	return utils.MessageResponse(c, fiber.StatusOK, "Request rejected")
}

// ListIssues handles GET /api/lending/issues?user=
// @Summary List loans
// @Description Loans of a user, after dropping the ones past their return date. Defaults to the caller.
// @Tags Lending
// @Produce json
// @Param user query int false "User ID"
// @Success 200 {array} services.IssueView
// @Failure 403 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /lending/issues [get]
func (h *LendingHandler) ListIssues(c *fiber.Ctx) error {
	who := middleware.IdentityFrom(c)
	user, ok := optionalUint(c, "user")
	if !ok {
		return badInput(c, "lending", "Invalid user id")
	}
	userID := who.UserID
	if user != nil {
		userID = *user
	}

	issues, err := h.Lending.ListIssues(c.UserContext(), who, userID)
	if err != nil {
		return respondError(c, err, "lending")
	}
	return utils.SuccessResponse(c, issues, fiber.StatusOK)
}

// ReturnBook handles POST /api/lending/issues/:book/return
// @Summary Return a book
// @Tags Lending
// @Produce json
// @Param book path int true "Book ID"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /lending/issues/{book}/return [post]
func (h *LendingHandler) ReturnBook(c *fiber.Ctx) error {
	book, ok := paramID(c, "book")
	if !ok {
		return badInput(c, "lending", "Invalid book id")
	}
	if err := h.Lending.ReturnBook(c.UserContext(), middleware.IdentityFrom(c), book); err != nil {
		return respondError(c, err, "lending")
	}
	return utils.MessageResponse(c, fiber.StatusOK, "Book returned")
}

// RevokeIssue handles DELETE /api/lending/issues/:book/:user
// @Summary Revoke a loan
// @Tags Lending
// @Produce json
// @Param book path int true "Book ID"
// @Param user path int true "User ID"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /lending/issues/{book}/{user} [delete]
func (h *LendingHandler) RevokeIssue(c *fiber.Ctx) error {
	book, user, ok := pairParams(c)
	if !ok {
		return badInput(c, "lending", "Invalid book or user id")
	}
	if err := h.Lending.RevokeIssue(c.UserContext(), middleware.IdentityFrom(c), book, user); err != nil {
		return respondError(c, err, "lending")
	}
	return utils.MessageResponse(c, fiber.StatusOK, "Loan revoked")
}

// SubmitFeedback handles PUT /api/books/:id/feedback
// @Summary Review a book
// @Description Store the caller's review, replacing an earlier one
// @Tags Lending
// @Accept json
// @Produce json
// @Param id path int true "Book ID"
// @Param body body FeedbackInput true "Review text and rating (1-5)"
// @Success 200 {object} models.BookFeedback
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /books/{id}/feedback [put]
func (h *LendingHandler) SubmitFeedback(c *fiber.Ctx) error {
	book, ok := paramID(c, "id")
	if !ok {
		return badInput(c, "lending", "Invalid book id")
	}
	var in FeedbackInput
	if err := c.BodyParser(&in); err != nil {
		return badInput(c, "lending", "Invalid input")
	}

	feedback, err := h.Lending.SubmitFeedback(c.UserContext(), middleware.IdentityFrom(c), book, in.Feedback, in.Rating.Int())
	if err != nil {
		return respondError(c, err, "lending")
	}
	return utils.SuccessResponse(c, feedback, fiber.StatusOK)
}

// ListFeedback handles GET /api/feedback?book=
// @Summary List reviews
// @Tags Lending
// @Produce json
// @Param book query int false "Book ID"
// @Success 200 {array} services.FeedbackView
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /feedback [get]
func (h *LendingHandler) ListFeedback(c *fiber.Ctx) error {
	book, ok := optionalUint(c, "book")
	if !ok {
		return badInput(c, "lending", "Invalid book id")
	}
	feedback, err := h.Lending.ListFeedback(c.UserContext(), middleware.IdentityFrom(c), book)
	if err != nil {
		return respondError(c, err, "lending")
	}
	return utils.SuccessResponse(c, feedback, fiber.StatusOK)
}

// PurchaseBook handles POST /api/books/:id/purchase
// @Summary Buy a book
// @Description Record a purchase. Buying again keeps the first purchase and answers 200.
// @Tags Lending
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} models.Purchase
// @Success 201 {object} models.Purchase
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /books/{id}/purchase [post]
func (h *LendingHandler) PurchaseBook(c *fiber.Ctx) error {
	book, ok := paramID(c, "id")
	if !ok {
		return badInput(c, "lending", "Invalid book id")
	}
	purchase, created, err := h.Lending.PurchaseBook(c.UserContext(), middleware.IdentityFrom(c), book)
	if err != nil {
		return respondError(c, err, "lending")
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return utils.SuccessResponse(c, purchase, status)
}

// Content handles GET /api/books/:id/content
// @Summary Download book content
// @Description Librarians may read any book; general users need a purchase or a current loan
// @Tags Lending
// @Produce application/pdf
// @Param id path int true "Book ID"
// @Success 200 {file} file
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /books/{id}/content [get]
func (h *LendingHandler) Content(c *fiber.Ctx) error {
	book, ok := paramID(c, "id")
	if !ok {
		return badInput(c, "lending", "Invalid book id")
	}
	content, err := h.Lending.OpenContent(c.UserContext(), middleware.IdentityFrom(c), book)
	if err != nil {
		return respondError(c, err, "lending")
	}
	defer content.Close()

	body, err := io.ReadAll(content)
	if err != nil {
		return respondError(c, err, "lending")
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q; filename*=UTF-8''%s", content.Filename, url.PathEscape(content.Filename)))
	return c.Status(fiber.StatusOK).Send(body)
}
