package domain

import "time"

// Criterion is a persisted natural-language rule appended to the
// classification prompt to steer future decisions. Criteria are rendered
// enabled-only, in creation order.
type Criterion struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Text      string    `json:"text" gorm:"not null"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
