package checklist

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p9e.in/qareports/models"
)

func resp(section, item string, rating models.Rating) models.Response {
	return models.Response{SectionKey: section, ItemKey: item, Rating: rating}
}

func TestProgressStats(t *testing.T) {
	r := loadRegistry(t)
	def, err := r.Resolve(models.ReportTier1)
	require.NoError(t, err)
	total := def.ItemCount()

	tests := []struct {
		name      string
		responses []models.Response
		want      Stats
	}{
		{
			name: "no responses",
			want: Stats{Total: total},
		},
		{
			name: "one no and one yes",
			responses: []models.Response{
				resp("health_safety", "fire_extinguisher", models.RatingNo),
				resp("health_safety", "allergy_list", models.RatingYes),
			},
			want: Stats{Total: total, Completed: 2, Percentage: 6, Yes: 1, No: 1},
		},
		{
			name: "na and empty ratings are not completed",
			responses: []models.Response{
				resp("health_safety", "fire_drills", models.RatingNA),
				resp("lobby", "front_desk", ""),
				resp("lobby", "visitor_log", models.RatingSometimes),
			},
			want: Stats{Total: total, Completed: 1, Percentage: 3, Sometimes: 1},
		},
		{
			name: "responses outside the checklist are ignored",
			responses: []models.Response{
				resp("curriculum", "assessments", models.RatingYes),
				resp("classroom_toddler", "room_clean", models.RatingYes),
				resp("lobby", "front_desk", models.RatingYes),
			},
			want: Stats{Total: total, Completed: 1, Percentage: 3, Yes: 1},
		},
		{
			name: "duplicate keys count once",
			responses: []models.Response{
				resp("lobby", "front_desk", models.RatingYes),
				resp("lobby", "front_desk", models.RatingNo),
			},
			want: Stats{Total: total, Completed: 1, Percentage: 3, Yes: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProgressStats(def, tt.responses))
		})
	}
}

func TestProgressStatsInvariants(t *testing.T) {
	r := loadRegistry(t)
	def, err := r.Resolve(models.ReportTier1Tier2)
	require.NoError(t, err)

	ratings := []models.Rating{models.RatingYes, models.RatingSometimes, models.RatingNo, models.RatingNA, "maybe"}
	var responses []models.Response
	i := 0
	for _, s := range def.Sections {
		for _, it := range s.Items {
			responses = append(responses, resp(s.Key, it.Key, ratings[i%len(ratings)]))
			i++
		}
	}

	for n := 0; n <= len(responses); n++ {
		stats := ProgressStats(def, responses[:n])
		assert.GreaterOrEqual(t, stats.Completed, 0)
		assert.LessOrEqual(t, stats.Completed, stats.Total)
		assert.Equal(t, int(math.Round(float64(stats.Completed)/float64(stats.Total)*100)), stats.Percentage)
		assert.LessOrEqual(t, stats.Yes+stats.Sometimes+stats.No, stats.Completed)
	}

	full := ProgressStats(def, responses)
	assert.Less(t, full.Yes+full.Sometimes+full.No, full.Completed, "unknown ratings count as completed only")
}

func TestProgressStatsEmptyDefinition(t *testing.T) {
	stats := ProgressStats(Definition{}, []models.Response{resp("a", "b", models.RatingYes)})
	assert.Equal(t, Stats{}, stats)
}
