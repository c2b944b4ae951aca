package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/librarydb/internal/handlers"
	"github.com/localnerve/librarydb/internal/middleware"
	"github.com/localnerve/librarydb/internal/models"
	"github.com/localnerve/librarydb/internal/services"
	"github.com/localnerve/librarydb/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthApp(t *testing.T) (*fiber.App, *testutil.Env) {
	env := testutil.NewEnv(t)
	auth := &middleware.Auth{
		Sessions: middleware.NewSessionStore(time.Hour),
		Users:    env.Users,
		Log:      env.Log,
	}
	h := &handlers.AuthHandler{Users: env.Users, Auth: auth, Log: env.Log}

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Use(auth.Identify())
	app.Post("/login", h.Login)
	app.Post("/register", h.Register)
	app.Post("/logout", h.Logout)
	app.Get("/me", middleware.AuthAny(), h.Me)
	app.Get("/librarian", middleware.AuthLibrarian(), func(c *fiber.Ctx) error {
		return c.SendString(middleware.IdentityFrom(c).Username)
	})
	app.Get("/general", middleware.AuthGeneral(), func(c *fiber.Ctx) error {
		return c.SendString(middleware.IdentityFrom(c).Username)
	})
	return app, env
}

func post(t *testing.T, app *fiber.App, path string, body interface{}, cookie *http.Cookie) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func get(t *testing.T, app *fiber.App, path string, cookie *http.Cookie) *http.Response {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	t.Fatalf("No %s cookie in response", middleware.SessionCookie)
	return nil
}

func TestLoginSession(t *testing.T) {
	app, env := newAuthApp(t)
	env.Librarian(t, "boss")

	resp := get(t, app, "/me", nil)
	testutil.AssertError(t, resp, fiber.StatusUnauthorized)

	resp = post(t, app, "/login", map[string]string{"username": "boss", "password": "wrong-one"}, nil)
	body := testutil.AssertError(t, resp, fiber.StatusUnauthorized)
	assert.Equal(t, "auth.unauthenticated", body.Type)

	resp = post(t, app, "/login", map[string]string{"username": "boss", "password": "secret-boss", "role": "General"}, nil)
	testutil.AssertError(t, resp, fiber.StatusForbidden)

	resp = post(t, app, "/login", map[string]string{"username": "boss", "password": "secret-boss", "role": "Admin"}, nil)
	testutil.AssertError(t, resp, fiber.StatusBadRequest)

	resp = post(t, app, "/login", map[string]string{"username": "boss", "password": "secret-boss", "role": "Librarian"}, nil)
	testutil.AssertStatus(t, resp, fiber.StatusOK)
	cookie := sessionCookie(t, resp)

	resp = get(t, app, "/me", cookie)
	testutil.AssertStatus(t, resp, fiber.StatusOK)
	var me models.User
	testutil.ParseJSON(t, resp, &me)
	assert.Equal(t, "boss", me.Username)
	assert.Equal(t, models.RoleLibrarian, me.Role)

	resp = get(t, app, "/librarian", cookie)
	testutil.AssertStatus(t, resp, fiber.StatusOK)
	resp = get(t, app, "/general", cookie)
	body = testutil.AssertError(t, resp, fiber.StatusForbidden)
	assert.Equal(t, "auth.general", body.Type)

	resp = post(t, app, "/logout", map[string]string{}, cookie)
	testutil.AssertStatus(t, resp, fiber.StatusOK)
	resp = get(t, app, "/me", cookie)
	testutil.AssertError(t, resp, fiber.StatusUnauthorized)
}

func TestRegisterStartsSession(t *testing.T) {
	app, _ := newAuthApp(t)

	resp := post(t, app, "/register", services.Registration{Username: "ann", Password: "secret1", FirstName: "Ann"}, nil)
	testutil.AssertStatus(t, resp, fiber.StatusCreated)
	cookie := sessionCookie(t, resp)

	resp = get(t, app, "/general", cookie)
	testutil.AssertStatus(t, resp, fiber.StatusOK)

	resp = post(t, app, "/register", services.Registration{Username: "ann", Password: "secret1", FirstName: "Ann"}, nil)
	testutil.AssertError(t, resp, fiber.StatusConflict)

	resp = post(t, app, "/register", services.Registration{Username: "bob", Password: "123", FirstName: "Bob"}, nil)
	testutil.AssertError(t, resp, fiber.StatusBadRequest)
}

func TestStaleSessionIsAnonymous(t *testing.T) {
	app, env := newAuthApp(t)
	reader := env.Reader(t, "reader")

	resp := post(t, app, "/login", map[string]string{"username": "reader", "password": "secret-reader"}, nil)
	testutil.AssertStatus(t, resp, fiber.StatusOK)
	cookie := sessionCookie(t, resp)

	require.NoError(t, env.DB.Delete(&models.User{}, reader.UserID).Error)

	resp = get(t, app, "/me", cookie)
	testutil.AssertError(t, resp, fiber.StatusUnauthorized)
}

func TestIdentityFromWithoutIdentify(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Get("/", func(c *fiber.Ctx) error {
		assert.True(t, middleware.IdentityFrom(c).Anonymous())
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
