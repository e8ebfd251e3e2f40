package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	log "github.com/sirupsen/logrus"

	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/billing"
	icuser "github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/usercontext"
)

// SessionVerifier resolves the authenticated caller of a request.
type SessionVerifier interface {
	Verify(c *fiber.Ctx) (icuser.Principal, bool)
}

// SessionVerifierFunc adapts a function to SessionVerifier.
type SessionVerifierFunc func(c *fiber.Ctx) (icuser.Principal, bool)

func (f SessionVerifierFunc) Verify(c *fiber.Ctx) (icuser.Principal, bool) {
	return f(c)
}

type cookieSessionVerifier struct {
	store   *session.Store
	isAdmin func(email string) bool
}

// NewSessionVerifier reads the signed-in email from the cookie session. The
// login flow that writes it lives outside this service.
func NewSessionVerifier(store *session.Store, isAdmin func(email string) bool) SessionVerifier {
	return &cookieSessionVerifier{store: store, isAdmin: isAdmin}
}

func (v *cookieSessionVerifier) Verify(c *fiber.Ctx) (icuser.Principal, bool) {
	if v.store == nil {
		return icuser.Principal{}, false
	}
	sess, err := v.store.Get(c)
	if err != nil {
		log.WithError(err).Debug("Session lookup failed")
		return icuser.Principal{}, false
	}
	email, _ := sess.Get(icuser.KeyUserEmail).(string)
	email = billing.NormalizeEmail(email)
	if email == "" {
		return icuser.Principal{}, false
	}
	name, _ := sess.Get(icuser.KeyUserName).(string)
	p := icuser.Principal{
		UserID: billing.UserIDFromEmail(email),
		Email:  email,
		Name:   strings.TrimSpace(name),
	}
	if v.isAdmin != nil {
		p.IsAdmin = v.isAdmin(email)
	}
	return p, true
}

// PrincipalMiddleware attaches the verified principal, if any, to every
// request. Anonymous requests pass through.
func PrincipalMiddleware(v SessionVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if p, ok := v.Verify(c); ok {
			icuser.SetPrincipal(c, p)
		}
		return c.Next()
	}
}

// RequirePrincipal rejects requests without a principal with JSON 401.
func RequirePrincipal(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "login required",
		})
	}
	return c.Next()
}

// RequireAdmin ensures a logged-in admin; JSON 401/403 otherwise.
func RequireAdmin(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "login required",
		})
	}
	if !icuser.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "admin access required",
		})
	}
	return c.Next()
}
