// Package push turns push messages into notifications and manages the
// device's push subscription with the story API.
package push

import (
	"encoding/json"
)

const (
	DefaultTitle = "StoryApp"
	DefaultBody  = "You have a new notification"
	DefaultURL   = "/"
	DefaultIcon  = "/favicon.png"
	DefaultTag   = "storyapp-notification"

	// OpenAction is the single action offered on every notification.
	OpenAction = "open"
)

// Payload is the JSON body of a push message.
type Payload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	URL     string `json:"url"`
	Icon    string `json:"icon"`
	Badge   string `json:"badge"`
	Tag     string `json:"tag"`
	StoryID string `json:"storyId"`
}

// ParsePayload never fails: empty or malformed data yields the default
// payload, and missing presentation fields get their defaults.
func ParsePayload(data []byte) Payload {
	p := Payload{Title: DefaultTitle, Body: DefaultBody, URL: DefaultURL}

	if len(data) > 0 {
		var in Payload
		if err := json.Unmarshal(data, &in); err == nil {
			p = in
		}
	}

	if p.Title == "" {
		p.Title = DefaultTitle
	}
	if p.URL == "" {
		p.URL = DefaultURL
	}
	if p.Icon == "" {
		p.Icon = DefaultIcon
	}
	if p.Badge == "" {
		p.Badge = DefaultIcon
	}
	if p.Tag == "" {
		p.Tag = DefaultTag
	}
	return p
}

// Action is a button shown on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is what the platform is asked to display.
type Notification struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Icon    string   `json:"icon"`
	Badge   string   `json:"badge"`
	Tag     string   `json:"tag"`
	URL     string   `json:"url"`
	StoryID string   `json:"storyId,omitempty"`
	Actions []Action `json:"actions"`
}

// NewNotification builds the notification for a parsed payload.
func NewNotification(p Payload) Notification {
	return Notification{
		Title:   p.Title,
		Body:    p.Body,
		Icon:    p.Icon,
		Badge:   p.Badge,
		Tag:     p.Tag,
		URL:     p.URL,
		StoryID: p.StoryID,
		Actions: []Action{{Action: OpenAction, Title: "Open"}},
	}
}
