// Package follow lets an identified caller follow and unfollow people.
package follow

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/basedpeople/internal/identity"
)

// ErrAuthRequired is returned when the caller could not be identified.
var ErrAuthRequired = errors.New("authentication required")

// ErrUnknownPerson is returned for slugs outside the catalog.
var ErrUnknownPerson = errors.New("unknown person")

// Store holds follow relationships.
type Store interface {
	ToggleFollow(userID, slug string) (bool, error)
	IsFollowing(userID, slug string) (bool, error)
	GetFollowedSlugs(userID string) ([]string, error)
}

// Catalog reports which slugs can be followed.
type Catalog interface {
	Has(slug string) bool
}

type Manager struct {
	store    Store
	resolver identity.Resolver
	catalog  Catalog
}

// NewManager creates a Manager. catalog may be nil to accept any slug.
func NewManager(store Store, resolver identity.Resolver, catalog Catalog) *Manager {
	return &Manager{store: store, resolver: resolver, catalog: catalog}
}

// Identify resolves credential to a user id. Unrecognized or missing
// credentials yield ErrAuthRequired; provider outages are returned as-is.
func (m *Manager) Identify(ctx context.Context, credential string) (string, error) {
	userID, err := m.resolver.Resolve(ctx, credential)
	if errors.Is(err, identity.ErrUnauthenticated) {
		return "", ErrAuthRequired
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// Toggle flips the follow state of slug for the caller and returns the new
// state.
func (m *Manager) Toggle(ctx context.Context, credential, slug string) (bool, error) {
	userID, err := m.Identify(ctx, credential)
	if err != nil {
		return false, err
	}
	if m.catalog != nil && !m.catalog.Has(slug) {
		return false, ErrUnknownPerson
	}
	following, err := m.store.ToggleFollow(userID, slug)
	if err != nil {
		return false, fmt.Errorf("toggling follow of %s: %w", slug, err)
	}
	return following, nil
}

// Follows lists the slugs the caller follows, oldest follow first.
func (m *Manager) Follows(ctx context.Context, credential string) ([]string, error) {
	userID, err := m.Identify(ctx, credential)
	if err != nil {
		return nil, err
	}
	slugs, err := m.store.GetFollowedSlugs(userID)
	if err != nil {
		return nil, fmt.Errorf("listing follows: %w", err)
	}
	if slugs == nil {
		slugs = []string{}
	}
	return slugs, nil
}

// IsFollowing reports whether the caller follows slug. Anonymous callers
// follow nobody.
func (m *Manager) IsFollowing(ctx context.Context, credential, slug string) (bool, error) {
	userID, err := m.Identify(ctx, credential)
	if errors.Is(err, ErrAuthRequired) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.store.IsFollowing(userID, slug)
}
