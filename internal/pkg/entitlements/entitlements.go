// Package entitlements answers "may this user use that capability" for
// feature-gated code.
package entitlements

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/models"
)

// GrantsAccess is the single access rule for an entitlement record.
//
// An active record grants access until its expiry (nil never expires). A
// canceled record keeps granting access until a future expiry, so a
// cancellation ends access at the end of the paid period rather than on
// receipt of the webhook. Expired records never grant access.
func GrantsAccess(status string, expiresAt *time.Time, now time.Time) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.EntitlementStatusActive:
		return expiresAt == nil || expiresAt.After(now)
	case models.EntitlementStatusCanceled:
		return expiresAt != nil && expiresAt.After(now)
	default:
		return false
	}
}

// Store is the query side of the entitlement storage.
type Store interface {
	HasActiveEntitlement(ctx context.Context, userID, entitlementKey string, now time.Time) (bool, error)
	ListEntitlements(ctx context.Context, userID string) ([]models.Entitlement, error)
}

// Checker evaluates entitlements against a Store using its clock.
type Checker struct {
	store Store
	now   func() time.Time
}

func NewChecker(store Store) *Checker {
	return &Checker{store: store, now: time.Now}
}

// WithClock replaces the clock, for tests.
func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	return c
}

var ErrMissingIdentity = errors.New("user id and entitlement key are required")

func (c *Checker) HasActiveEntitlement(ctx context.Context, userID, entitlementKey string) (bool, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(entitlementKey) == "" {
		return false, ErrMissingIdentity
	}
	return c.store.HasActiveEntitlement(ctx, userID, entitlementKey, c.now())
}

// Summary is the per-key view returned to account pages.
type Summary struct {
	EntitlementKey string     `json:"entitlementKey"`
	Active         bool       `json:"active"`
	Status         string     `json:"status"`
	SourceType     string     `json:"sourceType"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// Summaries collapses a user's records to one entry per entitlement key,
// preferring a record that currently grants access, then the latest update.
func (c *Checker) Summaries(ctx context.Context, userID string) ([]Summary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingIdentity
	}
	rows, err := c.store.ListEntitlements(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	order := make([]string, 0, len(rows))
	best := make(map[string]models.Entitlement, len(rows))
	for _, row := range rows {
		cur, seen := best[row.EntitlementKey]
		if !seen {
			order = append(order, row.EntitlementKey)
			best[row.EntitlementKey] = row
			continue
		}
		curActive := GrantsAccess(cur.Status, cur.ExpiresAt, now)
		rowActive := GrantsAccess(row.Status, row.ExpiresAt, now)
		if (rowActive && !curActive) || (rowActive == curActive && row.UpdatedAt.After(cur.UpdatedAt)) {
			best[row.EntitlementKey] = row
		}
	}

	out := make([]Summary, 0, len(order))
	for _, key := range order {
		row := best[key]
		out = append(out, Summary{
			EntitlementKey: key,
			Active:         GrantsAccess(row.Status, row.ExpiresAt, now),
			Status:         row.Status,
			SourceType:     row.SourceType,
			ExpiresAt:      row.ExpiresAt,
		})
	}
	return out, nil
}
