package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/localnerve/librarydb/internal/models"
	"github.com/localnerve/librarydb/internal/services"
	"github.com/localnerve/librarydb/internal/types"
	"go.uber.org/zap"
)

const (
	// SessionCookie carries the local session id
	SessionCookie = "library_session"
	// AuthorizerCookie carries an external Authorizer session
	AuthorizerCookie = "cookie_session"

	identityKey = "identity"
	userIDKey   = "uid"
)

// NewSessionStore creates the local session store
func NewSessionStore(expiration time.Duration) *session.Store {
	return session.New(session.Config{
		Expiration:     expiration,
		KeyLookup:      "cookie:" + SessionCookie,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	})
}

// Auth resolves the caller of each request from a local session or, when configured,
// an Authorizer session.
type Auth struct {
	Sessions *session.Store
	Users    *services.Users
	Authz    *services.Authorizer
	Log      *zap.Logger
}

// Identify stores the caller's identity in the request context. Anonymous requests pass through.
func (a *Auth) Identify() fiber.Handler {
	return func(c *fiber.Ctx) error {
		SetIdentity(c, a.resolve(c))
		return c.Next()
	}
}

func (a *Auth) resolve(c *fiber.Ctx) services.Identity {
	sess, err := a.Sessions.Get(c)
	if err != nil {
		a.Log.Warn("Session lookup failed", zap.Error(err))
	} else if uid, ok := sess.Get(userIDKey).(uint); ok {
		user, err := a.Users.Get(c.UserContext(), uid)
		if err == nil {
			return services.IdentityOf(user)
		}
		// Account is gone, the session is stale
		if errors.Is(err, services.ErrNotFound) {
			_ = sess.Destroy()
		} else {
			a.Log.Error("Failed to load session user", zap.Uint("user_id", uid), zap.Error(err))
		}
	}

	cookie := c.Cookies(AuthorizerCookie)
	if a.Authz == nil || cookie == "" {
		return services.Identity{}
	}

	ext, err := a.Authz.ValidateSession(cookie)
	if err != nil {
		a.Log.Debug("Authorizer session rejected", zap.Error(err))
		return services.Identity{}
	}
	user, err := a.Users.Provision(c.UserContext(), ext)
	if err != nil {
		a.Log.Error("Failed to provision external user", zap.String("email", ext.Email), zap.Error(err))
		return services.Identity{}
	}
	return services.IdentityOf(user)
}

// SignIn starts a fresh local session for user
func (a *Auth) SignIn(c *fiber.Ctx, user *models.User) error {
	sess, err := a.Sessions.Get(c)
	if err != nil {
		return err
	}
	if err := sess.Regenerate(); err != nil {
		return err
	}
	sess.Set(userIDKey, user.ID)
	if err := sess.Save(); err != nil {
		return err
	}
	SetIdentity(c, services.IdentityOf(user))
	return nil
}

// SignOut ends the local session
func (a *Auth) SignOut(c *fiber.Ctx) error {
	sess, err := a.Sessions.Get(c)
	if err != nil {
		return err
	}
	SetIdentity(c, services.Identity{})
	return sess.Destroy()
}

// SetIdentity stores the caller's identity in the request context
func SetIdentity(c *fiber.Ctx, id services.Identity) {
	c.Locals(identityKey, id)
}

// IdentityFrom returns the caller's identity, anonymous when none was resolved
func IdentityFrom(c *fiber.Ctx) services.Identity {
	if id, ok := c.Locals(identityKey).(services.Identity); ok {
		return id
	}
	return services.Identity{}
}

// AuthAny requires a signed in caller of any role
func AuthAny() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authorize(c, nil, "auth.required")
	}
}

// AuthLibrarian requires a librarian
func AuthLibrarian() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authorize(c, []models.Role{models.RoleLibrarian}, "auth.librarian")
	}
}

// AuthGeneral requires a general user
func AuthGeneral() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authorize(c, []models.Role{models.RoleGeneral}, "auth.general")
	}
}

// authorize performs the authorization check
func authorize(c *fiber.Ctx, roles []models.Role, errorType string) error {
	id := IdentityFrom(c)
	if id.Anonymous() {
		return types.NewError(fiber.StatusUnauthorized, "auth.required", "Sign in required")
	}
	if len(roles) == 0 {
		return c.Next()
	}
	if err := id.Require(roles...); err != nil {
		return types.WrapError(fiber.StatusForbidden, errorType, err)
	}
	return c.Next()
}
