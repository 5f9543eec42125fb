package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/comparison"
	"p9e.in/qareports/pkg/reports"
)

const summaryInstructions = `## Instructions
Generate a structured JSON response with the following format:
{
  "executive_summary": "A 2-3 paragraph professional summary of the inspection findings",
  "issues": [
    { "severity": "high|medium|low", "section": "section name", "description": "issue description" }
  ],
  "poi": [
    { "section": "section name", "recommendation": "actionable recommendation" }
  ],
  "comparison": {
    "improvements": ["list of improved items"],
    "regressions": ["list of regressed items"]
  },
  "suggested_rating": "exceeds|meets|needs_improvement"
}

Focus on:
1. Critical safety and compliance issues (mark as HIGH severity)
2. Areas that need immediate attention
3. Positive observations and strengths
4. Specific, actionable recommendations for the Points of Interest (POI)
5. Overall assessment and suggested rating based on the responses
`

// buildSummaryPrompt renders the report, its rated items and the changes
// against the previous report.
func buildSummaryPrompt(view *reports.ReportView, deltas []comparison.ResponseDelta) string {
	var b strings.Builder

	schoolName := "Unknown School"
	if view.Report.School != nil {
		schoolName = view.Report.School.Name
	}

	b.WriteString("You are a QA analyst for a multi-site childcare organization. ")
	b.WriteString("Analyze the following QA inspection report and generate an executive summary.\n\n")

	b.WriteString("## Report Information\n")
	fmt.Fprintf(&b, "- School: %s\n", schoolName)
	fmt.Fprintf(&b, "- Report Type: %s\n", view.Report.ReportType.Label())
	fmt.Fprintf(&b, "- Inspection Date: %s\n\n", view.Report.InspectionDate.Time().Format("January 2, 2006"))

	p := view.Progress
	b.WriteString("## Summary Statistics\n")
	fmt.Fprintf(&b, "- Total Items: %d\n", p.Total)
	fmt.Fprintf(&b, "- Completed: %d (%d%%)\n", p.Completed, p.Percentage)
	fmt.Fprintf(&b, "- Yes/Compliant: %d\n", p.Yes)
	fmt.Fprintf(&b, "- Needs Work: %d\n", p.Sometimes)
	fmt.Fprintf(&b, "- Non-Compliant: %d\n\n", p.No)

	b.WriteString("## Checklist Responses\n\n")
	for _, section := range view.Checklist.Sections {
		rated := view.Responses[section.Key]
		if len(rated) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n", section.Name)
		for _, item := range section.Items {
			resp, ok := rated[item.Key]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "- [%s] %s", strings.ToUpper(string(resp.Rating)), item.Label)
			if notes := strings.TrimSpace(resp.Notes); notes != "" {
				fmt.Fprintf(&b, " - Notes: %s", notes)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if view.PreviousReport != nil {
		b.WriteString("## Comparison with Previous Report\n")
		fmt.Fprintf(&b, "This report is compared to a previous inspection from %s.\n", view.PreviousReport.InspectionDate)
		for _, d := range deltas {
			if d.Class != comparison.Improved && d.Class != comparison.Regressed {
				continue
			}
			label := d.ItemKey
			if item, ok := view.Checklist.Item(d.SectionKey, d.ItemKey); ok {
				label = item.Label
			}
			fmt.Fprintf(&b, "- %s: %s (%s -> %s)\n", d.Class, label, d.PreviousRating, d.Rating)
		}
		b.WriteString("Highlight any improvements or regressions.\n\n")
	}

	b.WriteString(summaryInstructions)
	return b.String()
}

// summaryPayload is the JSON shape the model is asked to return.
type summaryPayload struct {
	ExecutiveSummary string                         `json:"executive_summary"`
	Issues           []models.SummaryIssue          `json:"issues"`
	POI              []models.SummaryRecommendation `json:"poi"`
	Comparison       models.SummaryComparison       `json:"comparison"`
	SuggestedRating  string                         `json:"suggested_rating"`
}

var errNoJSON = errors.New("no JSON object in model output")

// ExtractJSON returns the first JSON object in text, unwrapping a fenced
// ```json block when present.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", errNoJSON
	}
	candidate := s[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", fmt.Errorf("%w: invalid JSON", errNoJSON)
	}
	return candidate, nil
}

func parseSummary(text string) (*summaryPayload, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var out summaryPayload
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	if strings.TrimSpace(out.ExecutiveSummary) == "" {
		return nil, errors.New("summary has no executive_summary")
	}
	return &out, nil
}
