package ai

import (
	"context"
	"fmt"
	"strings"

	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/checklist"
)

// Suggestion sources.
const (
	SourcePredefined = "predefined"
	SourceAI         = "ai"
	SourceGeneric    = "generic"
)

// NoteSuggestion is a draft note for a failed or partial item.
type NoteSuggestion struct {
	Suggestion string `json:"suggestion"`
	Source     string `json:"source"`
}

// predefinedNotes is keyed by "section/item"; classroom sections share the
// "classroom" entries.
var predefinedNotes = map[string]map[models.Rating]string{
	"health_safety/fire_extinguisher": {
		models.RatingNo:        "Fire extinguisher needs to be serviced or replaced. Schedule an inspection and make sure the annual maintenance tag is current.",
		models.RatingSometimes: "Fire extinguisher present but needs attention. Check the expiration date and keep the monthly visual inspection log up to date.",
	},
	"health_safety/fire_drills": {
		models.RatingNo:        "Fire drills not conducted as required. Schedule monthly drills including one during nap time each year, and log dates and times.",
		models.RatingSometimes: "Fire drills are happening but not consistently documented. Make sure the drill log captures every required field.",
	},
	"health_safety/allergy_list": {
		models.RatingNo:        "Allergy list not posted or not current. Update it now, post it in every classroom and the kitchen, and brief all staff.",
		models.RatingSometimes: "Allergy list present but needs updating. Verify every enrolled child with an allergy is listed with current information.",
	},
	"classroom/handwashing": {
		models.RatingNo:        "Handwashing procedures not being followed. Retrain staff on technique and post handwashing signs at all sinks.",
		models.RatingSometimes: "Handwashing is inconsistent. Observe and coach staff on key times such as before meals and after diaper changes.",
	},
	"classroom/diapering": {
		models.RatingNo:        "Diapering procedure not followed correctly. Review the steps with staff and keep gloves and sanitizer at every changing table.",
		models.RatingSometimes: "Diapering procedure needs improvement. Coach staff on the correct sequence and sanitization.",
	},
	"playground/fall_zone": {
		models.RatingNo:        "Fall zone does not meet requirements. Add mulch to the required depth and extend the fall zone perimeter.",
		models.RatingSometimes: "Fall zone needs attention in places. Check depth and coverage under high-use equipment.",
	},
	"playground/equipment_condition": {
		models.RatingNo:        "Equipment has safety concerns such as rust, sharp edges or loose parts. Remove it from use until repaired or replaced.",
		models.RatingSometimes: "Some equipment needs maintenance. Schedule repairs and document completion.",
	},
	"kitchen/food_storage": {
		models.RatingNo:        "Food storage not meeting standards. Label every item with date and contents, rotate stock first in first out, and log fridge temperatures daily.",
		models.RatingSometimes: "Food storage mostly compliant but some items need labels or dates.",
	},
	"building/cleanliness": {
		models.RatingNo:        "Facility cleanliness below standards. A deep clean is required and cleaning checklists need to be strengthened.",
		models.RatingSometimes: "Some areas need additional cleaning, especially high-touch surfaces and restrooms.",
	},
	"lobby/front_desk": {
		models.RatingNo:        "Front desk not consistently staffed. Ensure coverage during all operating hours.",
		models.RatingSometimes: "Front desk coverage is intermittent. Review the schedule and set up a backup coverage plan.",
	},
}

const notePrompt = `You are a QA officer for a childcare facility. A checklist item "%s" in the "%s" section was marked as "%s". ` +
	`Generate a brief, professional note (1-2 sentences) that could be added to the inspection report explaining the issue and recommending action. ` +
	`Be specific and actionable. Return only the note text, no other formatting.`

func noteKey(section, item string) string {
	if strings.HasPrefix(section, "classroom_") {
		section = "classroom"
	}
	return section + "/" + item
}

// SuggestNote proposes a note for an item rated no or sometimes: a
// predefined note first, then the model, then a generic template.
func (s *Summarizer) SuggestNote(ctx context.Context, registry *checklist.Registry, section, item string, rating models.Rating) (NoteSuggestion, error) {
	if rating != models.RatingNo && rating != models.RatingSometimes {
		return NoteSuggestion{}, models.NewValidationError("rating", "must be one of: no, sometimes")
	}
	it, ok := registry.GetItem(section, item)
	if !ok {
		return NoteSuggestion{}, models.NewValidationError("item_key", "unknown item %s/%s", section, item)
	}

	if notes, ok := predefinedNotes[noteKey(section, item)]; ok {
		if note, ok := notes[rating]; ok {
			return NoteSuggestion{Suggestion: note, Source: SourcePredefined}, nil
		}
	}

	if s.Configured() {
		verdict := "partially compliant/Sometimes"
		if rating == models.RatingNo {
			verdict = "NOT compliant/No"
		}
		prompt := fmt.Sprintf(notePrompt, it.Label, strings.ReplaceAll(section, "_", " "), verdict)
		text, err := s.call(ctx, prompt, noteMaxTokens)
		if err == nil && strings.TrimSpace(text) != "" {
			return NoteSuggestion{Suggestion: strings.TrimSpace(text), Source: SourceAI}, nil
		}
		if err != nil {
			s.log.WithError(err).Warn("⚠️  note suggestion fell back to generic")
		}
	}

	return genericNote(it.Label, rating), nil
}

func genericNote(label string, rating models.Rating) NoteSuggestion {
	template := `Item "%s" needs improvement. While partially meeting standards, additional attention is recommended.`
	if rating == models.RatingNo {
		template = `Item "%s" is not meeting standards. Immediate action is required to bring it into compliance.`
	}
	return NoteSuggestion{Suggestion: fmt.Sprintf(template, label), Source: SourceGeneric}
}
