// Package comparison classifies a report's responses and photos against a
// linked previous report. Nothing here writes to storage.
package comparison

import (
	"sort"

	"p9e.in/qareports/models"
)

// Diff is the change state of one response.
type Diff struct {
	Changed  bool `json:"changed"`
	Improved bool `json:"improved"`
}

// Class is the display classification of a response change.
type Class string

const (
	Unchanged Class = "unchanged"
	Improved  Class = "improved"
	Regressed Class = "regressed"
	// Changed is a rating change involving na, which is neither better nor worse.
	Changed Class = "changed"
)

// DiffResponse compares current with the matching response of the previous
// report. A nil previous means there is nothing to compare against.
func DiffResponse(current models.Response, previous *models.Response) Diff {
	if previous == nil {
		return Diff{}
	}
	return diffRatings(current.Rating, previous.Rating)
}

// DiffSnapshot compares a response with the previous rating copied onto it
// when its report was linked. An empty previous rating means no previous.
func DiffSnapshot(r models.Response) Diff {
	if r.PreviousRating == "" {
		return Diff{}
	}
	return diffRatings(r.Rating, r.PreviousRating)
}

func diffRatings(current, previous models.Rating) Diff {
	d := Diff{Changed: current != previous}
	if !d.Changed {
		return d
	}
	cur, curOK := current.Rank()
	prev, prevOK := previous.Rank()
	d.Improved = curOK && prevOK && cur > prev
	return d
}

// Classify turns a diff into a display class.
func Classify(d Diff, current, previous models.Rating) Class {
	switch {
	case !d.Changed:
		return Unchanged
	case d.Improved:
		return Improved
	}
	cur, curOK := current.Rank()
	prev, prevOK := previous.Rank()
	if curOK && prevOK && cur < prev {
		return Regressed
	}
	return Changed
}

// ResponseDelta is one aligned (section, item) pair.
type ResponseDelta struct {
	SectionKey     string        `json:"sectionKey"`
	ItemKey        string        `json:"itemKey"`
	Rating         models.Rating `json:"rating"`
	PreviousRating models.Rating `json:"previousRating,omitempty"`
	HasPrevious    bool          `json:"hasPrevious"`
	Diff
	Class Class `json:"class"`
}

// CompareResponses aligns current responses with previous ones by section
// and item. Items only present in previous are not reported.
func CompareResponses(current, previous []models.Response) []ResponseDelta {
	prior := make(map[models.ItemKey]models.Response, len(previous))
	for _, p := range previous {
		prior[p.Key()] = p
	}

	deltas := make([]ResponseDelta, 0, len(current))
	for _, c := range current {
		delta := ResponseDelta{SectionKey: c.SectionKey, ItemKey: c.ItemKey, Rating: c.Rating}
		var prev *models.Response
		if p, ok := prior[c.Key()]; ok {
			prev = &p
			delta.PreviousRating = p.Rating
			delta.HasPrevious = true
		}
		delta.Diff = DiffResponse(c, prev)
		delta.Class = Classify(delta.Diff, c.Rating, delta.PreviousRating)
		deltas = append(deltas, delta)
	}
	sortDeltas(deltas)
	return deltas
}

// SnapshotDeltas classifies responses against their copied previous values.
func SnapshotDeltas(current []models.Response) []ResponseDelta {
	deltas := make([]ResponseDelta, 0, len(current))
	for _, c := range current {
		d := DiffSnapshot(c)
		deltas = append(deltas, ResponseDelta{
			SectionKey:     c.SectionKey,
			ItemKey:        c.ItemKey,
			Rating:         c.Rating,
			PreviousRating: c.PreviousRating,
			HasPrevious:    c.PreviousRating != "",
			Diff:           d,
			Class:          Classify(d, c.Rating, c.PreviousRating),
		})
	}
	sortDeltas(deltas)
	return deltas
}

func sortDeltas(deltas []ResponseDelta) {
	sort.Slice(deltas, func(i, j int) bool {
		a := models.ItemKey{Section: deltas[i].SectionKey, Item: deltas[i].ItemKey}
		b := models.ItemKey{Section: deltas[j].SectionKey, Item: deltas[j].ItemKey}
		return a.Less(b)
	})
}

// Summary counts deltas per class.
type Summary struct {
	Unchanged int `json:"unchanged"`
	Improved  int `json:"improved"`
	Regressed int `json:"regressed"`
	Changed   int `json:"changed"`
}

func Summarize(deltas []ResponseDelta) Summary {
	var s Summary
	for _, d := range deltas {
		switch d.Class {
		case Unchanged:
			s.Unchanged++
		case Improved:
			s.Improved++
		case Regressed:
			s.Regressed++
		case Changed:
			s.Changed++
		}
	}
	return s
}
