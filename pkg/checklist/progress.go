package checklist

import (
	"math"

	"p9e.in/qareports/models"
)

// Stats summarises how much of a checklist has been rated.
type Stats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Percentage int `json:"percentage"`
	Yes        int `json:"yes"`
	Sometimes  int `json:"sometimes"`
	No         int `json:"no"`
}

// ProgressStats counts the responses that belong to def. A response counts
// as completed when its rating is anything but na. Responses for items that
// are not in def are ignored so Completed never exceeds Total.
func ProgressStats(def Definition, responses []models.Response) Stats {
	keys := def.Keys()
	stats := Stats{Total: len(keys)}

	counted := make(map[models.ItemKey]bool, len(responses))
	for _, resp := range responses {
		k := resp.Key()
		if _, ok := keys[k]; !ok || counted[k] {
			continue
		}
		counted[k] = true

		rating := resp.Rating
		if rating == "" {
			rating = models.RatingNA
		}
		if rating == models.RatingNA {
			continue
		}
		stats.Completed++
		switch rating {
		case models.RatingYes:
			stats.Yes++
		case models.RatingSometimes:
			stats.Sometimes++
		case models.RatingNo:
			stats.No++
		}
	}

	if stats.Total > 0 {
		stats.Percentage = int(math.Round(float64(stats.Completed) / float64(stats.Total) * 100))
	}
	return stats
}
