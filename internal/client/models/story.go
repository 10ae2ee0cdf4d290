// Package models defines client-side data models used by the storykeeper
// store, sync engine and API client.
package models

import (
	"strings"
	"time"
)

// Story is a location-tagged story as returned by the remote API and cached
// locally. Lat and Lon are nil when the story carries no location.
type Story struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	PhotoURL    string   `json:"photoUrl"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
}

// HasLocation reports whether both coordinates are present.
func (s Story) HasLocation() bool {
	return s.Lat != nil && s.Lon != nil
}

// CreatedTime parses CreatedAt as RFC 3339. The zero time is returned when
// the field is absent or malformed.
func (s Story) CreatedTime() time.Time {
	if s.CreatedAt == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Matches reports whether the query occurs in the name or description,
// case-insensitively. An empty query matches everything.
func (s Story) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s.Name), q) ||
		strings.Contains(strings.ToLower(s.Description), q)
}

// Favorite is a user-curated bookmark of a story. Favorites are never
// populated or evicted by network activity.
type Favorite struct {
	Story
	SavedAt time.Time `json:"savedAt"`
}

// Float returns a pointer to v; handy for optional coordinates.
func Float(v float64) *float64 {
	return &v
}
