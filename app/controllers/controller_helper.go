package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/billing"
)

// ErrorResponse is the body of every failed JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondError writes err with the status of its kind. Client errors carry
// their message; server errors are opaque unless dev is set.
func RespondError(c *fiber.Ctx, err error, dev bool) error {
	status := billing.HTTPStatus(err)
	msg := err.Error()
	if !billing.IsClientError(err) {
		log.WithError(err).WithFields(log.Fields{
			"path":   c.Path(),
			"method": c.Method(),
			"ip":     ClientIP(c),
		}).Error("Request failed")
		if !dev {
			msg = "internal error, please try again later"
		}
	}
	return c.Status(status).JSON(ErrorResponse{Error: msg})
}

// ClientIP determines the caller address considering Cloudflare and proxy
// headers.
func ClientIP(c *fiber.Ctx) string {
	// 1. Cloudflare provides the original client IP in this header
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}

	// 2. X-Forwarded-For can contain a list of IPs - the first one is the original client IP
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}

	// 3. No proxy headers, use the connection address. IPv4-mapped IPv6
	// addresses (::ffff:192.168.1.1) are reported as IPv4.
	ip := c.IP()
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		return strings.TrimPrefix(ip, "::ffff:")
	}
	return ip
}
