package models

import "fmt"

type Category string

const (
	CategoryHot          Category = "HOT"
	CategoryWarm         Category = "WARM"
	CategoryCold         Category = "COLD"
	CategoryBookingReady Category = "BOOKING_READY"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryHot, CategoryWarm, CategoryCold, CategoryBookingReady:
		return true
	}
	return false
}

// Classification is the lead intent reported by the classifier
type Classification struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

// IsHot reports whether the lead must be handed to a human.
func (c Classification) IsHot() bool {
	return c.Category == CategoryHot || c.Category == CategoryBookingReady
}

func (c Classification) Validate() error {
	if !c.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrMalformedClassification, c.Category)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v out of range", ErrMalformedClassification, c.Confidence)
	}
	return nil
}
