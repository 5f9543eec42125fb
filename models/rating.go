package models

import "fmt"

// Rating is the per-item answer recorded on a checklist response.
type Rating string

const (
	RatingYes       Rating = "yes"
	RatingSometimes Rating = "sometimes"
	RatingNo        Rating = "no"
	RatingNA        Rating = "na"
)

// ParseRating accepts the four rating values. An empty string means "not rated".
func ParseRating(s string) (Rating, error) {
	switch r := Rating(s); r {
	case "":
		return RatingNA, nil
	case RatingYes, RatingSometimes, RatingNo, RatingNA:
		return r, nil
	default:
		return "", fmt.Errorf("unknown rating %q", s)
	}
}

// Rank orders ratings no < sometimes < yes. The second value is false for
// na and anything unrecognised, which never take part in ordering.
func (r Rating) Rank() (int, bool) {
	switch r {
	case RatingNo:
		return 0, true
	case RatingSometimes:
		return 1, true
	case RatingYes:
		return 2, true
	}
	return -1, false
}

// OverallRating is the inspector's verdict for a whole report.
type OverallRating string

const (
	OverallExceeds          OverallRating = "exceeds"
	OverallMeets            OverallRating = "meets"
	OverallNeedsImprovement OverallRating = "needs_improvement"
	OverallPending          OverallRating = "pending"
)

func (o OverallRating) Valid() bool {
	switch o {
	case OverallExceeds, OverallMeets, OverallNeedsImprovement, OverallPending:
		return true
	}
	return false
}
