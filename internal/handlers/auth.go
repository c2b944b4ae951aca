package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/librarydb/internal/middleware"
	"github.com/localnerve/librarydb/internal/models"
	"github.com/localnerve/librarydb/internal/services"
	"github.com/localnerve/librarydb/internal/utils"
	"go.uber.org/zap"
)

// AuthHandler handles account and session routes
type AuthHandler struct {
	Users *services.Users
	Auth  *middleware.Auth
	Log   *zap.Logger
}

// LoginInput is the login body. Role, when given, must match the account.
type LoginInput struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     models.Role `json:"role,omitempty"`
}

// Register handles POST /api/auth/register
// @Summary Register
// @Description Create a general account and sign it in
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body services.Registration true "New account"
// @Success 201 {object} models.User
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var reg services.Registration
	if err := c.BodyParser(&reg); err != nil {
		return badInput(c, "auth", "Invalid input")
	}

	user, err := h.Users.Register(c.UserContext(), reg)
	if err != nil {
		return respondError(c, err, "auth")
	}
	if err := h.Auth.SignIn(c, user); err != nil {
		h.Log.Error("Failed to start session", zap.Uint("user_id", user.ID), zap.Error(err))
		return respondError(c, err, "auth")
	}
	return utils.SuccessResponse(c, user, fiber.StatusCreated)
}

// Login handles POST /api/auth/login
// @Summary Login
// @Description Verify credentials and start a session
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body LoginInput true "Credentials"
// @Success 200 {object} models.User
// @Failure 401 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var in LoginInput
	if err := c.BodyParser(&in); err != nil {
		return badInput(c, "auth", "Invalid input")
	}
	if in.Role != "" && !in.Role.Valid() {
		return badInput(c, "auth", "Unknown role")
	}

	user, err := h.Users.Authenticate(c.UserContext(), in.Username, in.Password, in.Role)
	if err != nil {
		return respondError(c, err, "auth")
	}
	if err := h.Auth.SignIn(c, user); err != nil {
		h.Log.Error("Failed to start session", zap.Uint("user_id", user.ID), zap.Error(err))
		return respondError(c, err, "auth")
	}

	h.Log.Info("User signed in", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	return utils.SuccessResponse(c, user, fiber.StatusOK)
}

// Logout handles POST /api/auth/logout
// @Summary Logout
// @Tags Auth
// @Produce json
// @Success 200 {object} utils.MessageResponseStruct
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.Auth.SignOut(c); err != nil {
		return respondError(c, err, "auth")
	}
	return utils.MessageResponse(c, fiber.StatusOK, "Signed out")
}

// Me handles GET /api/auth/me
// @Summary Current user
// @Tags Auth
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	who := middleware.IdentityFrom(c)
	user, err := h.Users.Get(c.UserContext(), who.UserID)
	if err != nil {
		return respondError(c, err, "auth")
	}
	return utils.SuccessResponse(c, user, fiber.StatusOK)
}
