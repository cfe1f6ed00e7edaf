package model

import "time"

type FAQ struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	IsActive  bool      `json:"is_active"`
	Views     int       `json:"views"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FAQMatch is one ranked result from the full-text search.
type FAQMatch struct {
	FAQ   FAQ     `json:"faq"`
	Score float64 `json:"score"`
}
