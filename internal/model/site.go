package model

import (
	"encoding/json"
	"time"
)

// Site is the identity record the widget connects with. The admin surfaces
// own creation and editing; the core only resolves and reads it.
type Site struct {
	ID             string          `json:"id"`
	SiteKey        string          `json:"site_key"`
	Name           string          `json:"name"`
	IsActive       bool            `json:"is_active"`
	WelcomeMessage string          `json:"welcome_message"`
	WidgetSettings json.RawMessage `json:"widget_settings,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
