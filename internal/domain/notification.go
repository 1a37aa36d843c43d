package domain

import "time"

// Category classifies a notification record.
type Category string

const (
	CategoryDonationSuccess Category = "donation_success"
	CategoryInfo            Category = "info"
	CategorySuccess         Category = "success"
	CategoryWarning         Category = "warning"
	CategoryError           Category = "error"
	CategoryCustom          Category = "custom"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryDonationSuccess, CategoryInfo, CategorySuccess,
		CategoryWarning, CategoryError, CategoryCustom:
		return true
	}
	return false
}

// Notification is the durable artifact of a processed job: the ground truth
// that a notification happened. Immutable after creation except for the
// Delivered flag, which the downstream email sender may flip.
type Notification struct {
	ID        string         `json:"id"`
	Recipient string         `json:"recipient"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	Category  Category       `json:"category"`
	Delivered bool           `json:"delivered"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListFilter holds query parameters for paginated notification listing.
type ListFilter struct {
	Recipient *string
	Category  *Category
	Page      int
	Limit     int
}
