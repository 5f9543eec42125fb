package reports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/checklist"
	"p9e.in/qareports/pkg/comparison"
	"p9e.in/qareports/pkg/ledger"
)

func tag(s string) *string { return &s }

func TestViewNewReportWithoutPrior(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	report := fx.newReport(t, fx.school, "2025-03-01")

	_, err := fx.svc.SaveResponses(ctx, report.ID, ledger.Payload{
		"lobby":         {"front_desk": {Rating: "yes"}},
		"health_safety": {"fire_extinguisher": {Rating: "yes"}},
	})
	require.NoError(t, err)

	view, err := fx.svc.View(ctx, report.ID)
	require.NoError(t, err)

	assert.Nil(t, view.PreviousReport)
	assert.Empty(t, view.PhotoPairs)
	assert.Nil(t, view.PhotoSummary)
	assert.Nil(t, view.AISummary)
	assert.Equal(t, checklist.Stats{Total: 32, Completed: 2, Percentage: 6, Yes: 2}, view.Progress)

	for _, items := range view.Responses {
		for _, rv := range items {
			assert.False(t, rv.Changed)
			assert.Equal(t, comparison.Unchanged, rv.Class)
		}
	}

	// Tier 1 plus the school's toddler classroom section.
	last := view.Checklist.Sections[len(view.Checklist.Sections)-1]
	assert.Equal(t, "classroom_toddler", last.Key)
	_, hasThrees := view.Checklist.Section("classroom_threes")
	assert.False(t, hasThrees, "zero count classrooms are skipped")

	stats, err := fx.svc.ProgressStats(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, view.Progress, stats)
}

func TestViewImprovementDetected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	prev := fx.newReport(t, fx.school, "2024-12-01")
	_, err := fx.svc.SaveResponses(ctx, prev.ID, ledger.Payload{
		"health_safety": {"fire_extinguisher": {Rating: "no", Notes: "expired tag"}, "fire_drills": {Rating: "yes"}},
	})
	require.NoError(t, err)

	report := fx.newReport(t, fx.school, "2025-03-01")
	_, err = fx.svc.SaveResponses(ctx, report.ID, ledger.Payload{
		"health_safety": {"fire_extinguisher": {Rating: "yes"}, "fire_drills": {Rating: "sometimes"}},
	})
	require.NoError(t, err)

	n, err := fx.svc.LinkPrevious(ctx, report.ID, prev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	view, err := fx.svc.View(ctx, report.ID)
	require.NoError(t, err)
	require.NotNil(t, view.PreviousReport)
	assert.Equal(t, prev.ID, view.PreviousReport.ID)

	ext := view.Responses["health_safety"]["fire_extinguisher"]
	assert.True(t, ext.Changed)
	assert.True(t, ext.Improved)
	assert.Equal(t, comparison.Improved, ext.Class)
	assert.Equal(t, "expired tag", ext.PreviousNotes)

	drills := view.Responses["health_safety"]["fire_drills"]
	assert.True(t, drills.Changed)
	assert.False(t, drills.Improved)
	assert.Equal(t, comparison.Regressed, drills.Class)

	cmp, err := fx.svc.Comparison(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, comparison.Summary{Improved: 1, Regressed: 1}, cmp.Summary)
}

func TestViewPhotosAndPairs(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	prev := fx.newReport(t, fx.school, "2024-12-01")
	report := fx.newReport(t, fx.school, "2025-03-01")
	_, err := fx.svc.LinkPrevious(ctx, report.ID, prev.ID)
	require.NoError(t, err)

	photos := []models.Photo{
		{ReportID: prev.ID, ExternalFileRef: "p/kitchen.jpg", LocationTag: tag("kitchen")},
		{ReportID: prev.ID, ExternalFileRef: "p/lot.jpg", LocationTag: tag("parking_lot"), SortOrder: 1},
		{ReportID: report.ID, ExternalFileRef: "c/kitchen.jpg", LocationTag: tag("kitchen"), SectionKey: "kitchen"},
		{ReportID: report.ID, ExternalFileRef: "c/mural.jpg", LocationTag: tag("art_wall"), SortOrder: 1},
		{ReportID: report.ID, ExternalFileRef: "c/ext.jpg", SectionKey: models.ItemSectionKey("health_safety", "fire_extinguisher"), SortOrder: 2},
	}
	for i := range photos {
		require.NoError(t, fx.db.Create(&photos[i]).Error)
	}

	view, err := fx.svc.View(ctx, report.ID)
	require.NoError(t, err)
	assert.Len(t, view.Photos["kitchen"], 1)
	assert.Len(t, view.Photos[models.GeneralSection], 1)
	assert.Len(t, view.Photos["health_safety|fire_extinguisher"], 1)

	require.Len(t, view.PhotoPairs, 2)
	assert.Equal(t, "art_wall", view.PhotoPairs[0].LocationTag)
	assert.Nil(t, view.PhotoPairs[0].Previous)
	assert.Equal(t, "p/kitchen.jpg", view.PhotoPairs[1].Previous.ExternalFileRef)
	require.NotNil(t, view.PhotoSummary)
	assert.Equal(t, 1, view.PhotoSummary.Matched)
	assert.Equal(t, 1, view.PhotoSummary.MissingInNew)

	cmp, err := fx.svc.Comparison(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, cmp.OrphanedPhotos, 1)
	assert.Equal(t, "p/lot.jpg", cmp.OrphanedPhotos[0].ExternalFileRef)
}

func TestComparisonWithoutPrevious(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	report := fx.newReport(t, fx.school, "2025-03-01")
	_, err := fx.svc.SaveResponses(ctx, report.ID, ledger.Payload{"lobby": {"front_desk": {Rating: "no"}}})
	require.NoError(t, err)

	cmp, err := fx.svc.Comparison(ctx, report.ID)
	require.NoError(t, err)
	assert.Nil(t, cmp.PreviousReportID)
	require.Len(t, cmp.Deltas, 1)
	assert.Equal(t, comparison.Unchanged, cmp.Deltas[0].Class)
	assert.Empty(t, cmp.PhotoPairs)
	assert.Empty(t, cmp.OrphanedPhotos)
}

func TestExportXLSX(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	report := fx.newReport(t, fx.school, "2025-03-01")
	_, err := fx.svc.SaveResponses(ctx, report.ID, ledger.Payload{"lobby": {"front_desk": {Rating: "sometimes", Notes: "covered at 9am"}}})
	require.NoError(t, err)

	buf, err := fx.svc.ExportXLSX(ctx, report.ID)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue(exportSheet, "A1")
	require.NoError(t, err)
	assert.Contains(t, title, fx.school.Name)

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	var found bool
	for _, row := range rows {
		if len(row) >= 4 && row[2] == "sometimes" {
			found = true
			assert.Equal(t, "covered at 9am", row[3])
		}
	}
	assert.True(t, found, "rated item is exported")

	assert.Equal(t, "qa_report_tier1_2025-03-01_20250320.xlsx", ExportFilename(report, testNow))
}
