package comparison

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"p9e.in/qareports/models"
)

var locationPresets = map[string]string{
	"lobby_entrance":     "Lobby / Entrance",
	"front_desk":         "Front Desk",
	"director_office":    "Director's Office",
	"kitchen":            "Kitchen",
	"kitchen_storage":    "Kitchen Storage",
	"laundry":            "Laundry Room",
	"playground_main":    "Main Playground",
	"playground_infant":  "Infant Playground",
	"playground_toddler": "Toddler Playground",
	"parking_lot":        "Parking Lot",
	"building_exterior":  "Building Exterior",
	"dumpster_area":      "Dumpster Area",
	"hallway_main":       "Main Hallway",
	"infant_a_room":      "Infant A Room",
	"infant_b_room":      "Infant B Room",
	"toddler_room":       "Toddler Room",
	"twos_room":          "Two's Room",
	"threes_room":        "Three's Room",
	"fours_room":         "Four's Room",
	"prek_room":          "Pre-K Room",
	"school_age_room":    "School-Age Room",
	"restroom_child":     "Child Restroom",
	"restroom_adult":     "Adult Restroom",
	"fire_extinguisher":  "Fire Extinguisher",
	"emergency_exit":     "Emergency Exit",
	"bulletin_board":     "Bulletin Board",
	"bus_exterior":       "Bus/Van Exterior",
	"bus_interior":       "Bus/Van Interior",
}

// LocationPresets returns the preset tags and their labels.
func LocationPresets() map[string]string {
	out := make(map[string]string, len(locationPresets))
	for k, v := range locationPresets {
		out[k] = v
	}
	return out
}

// LocationLabel is the display label for a location tag.
func LocationLabel(tag string) string {
	if label, ok := locationPresets[tag]; ok {
		return label
	}
	words := strings.Fields(strings.ReplaceAll(tag, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// Pair matches the current and previous photo taken at the same location.
type Pair struct {
	LocationTag   string        `json:"locationTag"`
	LocationLabel string        `json:"locationLabel"`
	Current       *models.Photo `json:"current"`
	Previous      *models.Photo `json:"previous"`
}

// byTag groups tagged photos, each group in sort order. Untagged photos are dropped.
func byTag(photos []models.Photo) map[string][]models.Photo {
	sorted := append([]models.Photo(nil), photos...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SortOrder < sorted[j].SortOrder })

	groups := map[string][]models.Photo{}
	for _, p := range sorted {
		if tag := p.Tag(); tag != "" {
			groups[tag] = append(groups[tag], p)
		}
	}
	return groups
}

// PairPhotos emits one pair per location tag in the current photos. The
// first current photo for the tag is paired with the first previous photo
// with the same tag, or nil when the spot was not documented before. Tags
// only seen in previous are left out; see OrphanedPrevious.
func PairPhotos(current, previous []models.Photo) []Pair {
	cur := byTag(current)
	prev := byTag(previous)

	pairs := make([]Pair, 0, len(cur))
	for tag, photos := range cur {
		pair := Pair{LocationTag: tag, LocationLabel: LocationLabel(tag)}
		c := photos[0]
		pair.Current = &c
		if ps := prev[tag]; len(ps) > 0 {
			p := ps[0]
			pair.Previous = &p
		}
		pairs = append(pairs, pair)
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].LocationLabel != pairs[j].LocationLabel {
			return pairs[i].LocationLabel < pairs[j].LocationLabel
		}
		return pairs[i].LocationTag < pairs[j].LocationTag
	})
	return pairs
}

// OrphanedPrevious returns previous photos at locations not photographed
// in the current report.
func OrphanedPrevious(current, previous []models.Photo) []models.Photo {
	cur := byTag(current)
	var out []models.Photo
	for _, p := range previous {
		tag := p.Tag()
		if tag == "" {
			continue
		}
		if _, ok := cur[tag]; !ok {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

// PhotoSummary counts locations across the two reports.
type PhotoSummary struct {
	TotalCurrent  int `json:"totalCurrent"`
	TotalPrevious int `json:"totalPrevious"`
	Matched       int `json:"matched"`
	NewLocations  int `json:"newLocations"`
	MissingInNew  int `json:"missingInNew"`
}

func SummarizePhotos(current, previous []models.Photo) PhotoSummary {
	s := PhotoSummary{TotalCurrent: len(current), TotalPrevious: len(previous)}
	for _, p := range PairPhotos(current, previous) {
		if p.Previous != nil {
			s.Matched++
		} else {
			s.NewLocations++
		}
	}
	s.MissingInNew = len(byTag(previous)) - s.Matched
	return s
}
