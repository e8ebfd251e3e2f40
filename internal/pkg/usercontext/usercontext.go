package usercontext

import "github.com/gofiber/fiber/v2"

// Principal is the authenticated caller of a request. UserID is the
// email-derived id entitlements are stored under.
type Principal struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	IsAdmin bool   `json:"is_admin"`
}

// SetPrincipal stores p for the rest of the request.
func SetPrincipal(c *fiber.Ctx, p Principal) {
	c.Locals(KeyPrincipal, p)
	c.Locals(KeyIsAdmin, p.IsAdmin)
}

// GetPrincipal returns the request principal, if one was verified.
func GetPrincipal(c *fiber.Ctx) (Principal, bool) {
	p, ok := c.Locals(KeyPrincipal).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, false
	}
	return p, true
}

// IsLoggedIn checks if the current request carries a principal
func IsLoggedIn(c *fiber.Ctx) bool {
	_, ok := GetPrincipal(c)
	return ok
}

// IsAdmin checks if the current principal is an admin
func IsAdmin(c *fiber.Ctx) bool {
	p, ok := GetPrincipal(c)
	return ok && p.IsAdmin
}
