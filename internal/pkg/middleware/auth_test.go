package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/billing"
	icuser "github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/usercontext"
)

func headerVerifier() SessionVerifier {
	return SessionVerifierFunc(func(c *fiber.Ctx) (icuser.Principal, bool) {
		email := c.Get("X-Test-User")
		if email == "" {
			return icuser.Principal{}, false
		}
		return icuser.Principal{UserID: billing.UserIDFromEmail(email), Email: email, IsAdmin: email == "admin@b.com"}, true
	})
}

func TestRequirePrincipalAndAdmin(t *testing.T) {
	app := fiber.New()
	app.Use(PrincipalMiddleware(headerVerifier()))
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) }
	app.Get("/me", RequirePrincipal, ok)
	app.Get("/admin", RequireAdmin, ok)

	tests := []struct {
		path string
		user string
		want int
	}{
		{"/me", "", fiber.StatusUnauthorized},
		{"/me", "a@b.com", fiber.StatusNoContent},
		{"/admin", "", fiber.StatusUnauthorized},
		{"/admin", "a@b.com", fiber.StatusForbidden},
		{"/admin", "admin@b.com", fiber.StatusNoContent},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.path, nil)
		if tt.user != "" {
			req.Header.Set("X-Test-User", tt.user)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.StatusCode, "%s as %q", tt.path, tt.user)
	}
}

func TestCookieSessionVerifier(t *testing.T) {
	store := session.New()
	verifier := NewSessionVerifier(store, func(email string) bool { return email == "admin@b.com" })

	app := fiber.New()
	app.Post("/login", func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			return err
		}
		sess.Set(icuser.KeyUserEmail, " Admin@B.com ")
		if err := sess.Save(); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/whoami", func(c *fiber.Ctx) error {
		p, ok := verifier.Verify(c)
		if !ok {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		return c.JSON(p)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/whoami", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/login", nil))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Cookies())

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.AddCookie(resp.Cookies()[0])
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestNilStoreVerifier(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		_, ok := NewSessionVerifier(nil, nil).Verify(c)
		assert.False(t, ok)
		return nil
	})
	_, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
}
