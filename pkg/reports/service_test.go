package reports

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"p9e.in/qareports/config"
	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/checklist"
	"p9e.in/qareports/pkg/ledger"
)

var testNow = time.Date(2025, 3, 20, 9, 30, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	svc     *Service
	schools *SchoolService
	school  *models.School
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := config.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, config.Migrations(db))

	registry := checklist.MustLoad()
	fx := &fixture{
		db:      db,
		svc:     NewService(db, registry, ledger.NewLedger(db), WithClock(func() time.Time { return testNow }), WithVisitInterval(90)),
		schools: NewSchoolService(db, registry),
	}
	fx.school = fx.newSchool(t, "Riverside Early Learning")
	return fx
}

func (fx *fixture) newSchool(t *testing.T, name string) *models.School {
	t.Helper()
	school, err := fx.schools.Create(context.Background(), SchoolInput{
		Name:            name,
		ClassroomConfig: models.ClassroomConfig{"toddler": 2, "threes": 0},
	})
	require.NoError(t, err)
	return school
}

func date(t *testing.T, s string) models.Date {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return d
}

func (fx *fixture) newReport(t *testing.T, school *models.School, day string) *models.Report {
	t.Helper()
	report, err := fx.svc.Create(context.Background(), CreateInput{
		SchoolID:       school.ID,
		ReportType:     string(models.ReportTier1),
		InspectionDate: date(t, day),
		UserID:         "inspector-1",
	})
	require.NoError(t, err)
	return report
}

func TestCreateDefaults(t *testing.T) {
	fx := newFixture(t)
	report := fx.newReport(t, fx.school, "2025-03-01")

	assert.Equal(t, models.StatusDraft, report.Status)
	assert.Equal(t, models.OverallPending, report.OverallRating)
	assert.Nil(t, report.PreviousReportID)

	got, err := fx.svc.Get(context.Background(), report.ID)
	require.NoError(t, err)
	require.NotNil(t, got.School)
	assert.Equal(t, fx.school.Name, got.School.Name)
	assert.Equal(t, "2025-03-01", got.InspectionDate.String())
}

func TestCreateValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	other := fx.newSchool(t, "Oak Hill Academy")
	otherReport := fx.newReport(t, other, "2025-01-10")
	missing := uuid.New()

	tests := []struct {
		name  string
		in    CreateInput
		field string
	}{
		{"missing school", CreateInput{ReportType: "tier1", InspectionDate: date(t, "2025-03-01")}, "school_id"},
		{"bad type", CreateInput{SchoolID: fx.school.ID, ReportType: "tier3", InspectionDate: date(t, "2025-03-01")}, "report_type"},
		{"missing date", CreateInput{SchoolID: fx.school.ID, ReportType: "tier1"}, "inspection_date"},
		{"bad overall", CreateInput{SchoolID: fx.school.ID, ReportType: "tier1", InspectionDate: date(t, "2025-03-01"), OverallRating: "great"}, "overall_rating"},
		{"previous from other school", CreateInput{SchoolID: fx.school.ID, ReportType: "tier1", InspectionDate: date(t, "2025-03-01"), PreviousReportID: &otherReport.ID}, "previous_report_id"},
		{"previous missing", CreateInput{SchoolID: fx.school.ID, ReportType: "tier1", InspectionDate: date(t, "2025-03-01"), PreviousReportID: &missing}, "previous_report_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.Create(ctx, tt.in)
			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	_, err := fx.svc.Create(ctx, CreateInput{SchoolID: uuid.New(), ReportType: "tier1", InspectionDate: date(t, "2025-03-01")})
	assert.ErrorIs(t, err, models.ErrSchoolNotFound)
}

func TestGetUnknownReport(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrReportNotFound)
}

func TestListFiltersAndOrders(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	other := fx.newSchool(t, "Oak Hill Academy")

	older := fx.newReport(t, fx.school, "2024-11-02")
	newer := fx.newReport(t, fx.school, "2025-02-14")
	fx.newReport(t, other, "2025-01-01")

	reports, total, err := fx.svc.List(ctx, Filter{SchoolID: &fx.school.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, reports, 2)
	assert.Equal(t, newer.ID, reports[0].ID)
	assert.Equal(t, older.ID, reports[1].ID)

	reports, total, err = fx.svc.List(ctx, Filter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, reports, 1)

	reports, _, err = fx.svc.List(ctx, Filter{Status: models.StatusSubmitted})
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestUpdatePatchesAndLinks(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	prev := fx.newReport(t, fx.school, "2024-12-01")
	report := fx.newReport(t, fx.school, "2025-03-01")

	_, err := fx.svc.SaveResponses(ctx, prev.ID, ledger.Payload{"lobby": {"visitor_log": {Rating: "no", Notes: "missing"}}})
	require.NoError(t, err)
	_, err = fx.svc.SaveResponses(ctx, report.ID, ledger.Payload{"lobby": {"visitor_log": {Rating: "yes"}}})
	require.NoError(t, err)

	notes := "Great visit"
	rating := "meets"
	updated, err := fx.svc.Update(ctx, report.ID, UpdateInput{ClosingNotes: &notes, OverallRating: &rating, PreviousReportID: &prev.ID})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.ClosingNotes)
	assert.Equal(t, models.OverallMeets, updated.OverallRating)
	require.NotNil(t, updated.PreviousReportID)
	assert.Equal(t, prev.ID, *updated.PreviousReportID)

	grouped, err := fx.svc.Responses(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RatingNo, grouped["lobby"]["visitor_log"].PreviousRating)
	assert.Equal(t, "missing", grouped["lobby"]["visitor_log"].PreviousNotes)

	bad := "excellent"
	_, err = fx.svc.Update(ctx, report.ID, UpdateInput{OverallRating: &bad})
	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestLinkPreviousRejectsSelfAndOtherSchool(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	report := fx.newReport(t, fx.school, "2025-03-01")
	foreign := fx.newReport(t, fx.newSchool(t, "Lakeside"), "2025-01-01")

	var ve *models.ValidationError
	_, err := fx.svc.LinkPrevious(ctx, report.ID, report.ID)
	require.ErrorAs(t, err, &ve)
	_, err = fx.svc.LinkPrevious(ctx, report.ID, foreign.ID)
	require.ErrorAs(t, err, &ve)

	got, err := fx.svc.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PreviousReportID)
}

func TestUpdateWithBadLinkChangesNothing(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	report := fx.newReport(t, fx.school, "2025-03-01")
	foreign := fx.newReport(t, fx.newSchool(t, "Lakeside"), "2025-01-01")

	notes := "should not stick"
	_, err := fx.svc.Update(ctx, report.ID, UpdateInput{ClosingNotes: &notes, PreviousReportID: &foreign.ID})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)

	got, err := fx.svc.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ClosingNotes)
	assert.Nil(t, got.PreviousReportID)
}

func TestLinkPreviousRollsBackWhenSnapshotFails(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	prev := fx.newReport(t, fx.school, "2024-12-01")
	report := fx.newReport(t, fx.school, "2025-03-01")

	require.NoError(t, fx.db.Migrator().DropTable(&models.Response{}))
	_, err := fx.svc.LinkPrevious(ctx, report.ID, prev.ID)
	require.Error(t, err)

	got, err := fx.svc.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PreviousReportID, "link and snapshot commit together")
}

func TestDeleteCascades(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	report := fx.newReport(t, fx.school, "2024-12-01")
	followUp, err := fx.svc.StartFollowUp(ctx, report.ID, FollowUpInput{InspectionDate: date(t, "2025-03-01")})
	require.NoError(t, err)

	_, err = fx.svc.SaveResponses(ctx, report.ID, ledger.Payload{"lobby": {"visitor_log": {Rating: "yes"}}})
	require.NoError(t, err)
	require.NoError(t, fx.db.Create(&models.Photo{ReportID: report.ID, ExternalFileRef: "r/a.jpg", ThumbnailRef: "r/a_thumb.jpg"}).Error)
	require.NoError(t, fx.db.Create(&models.Photo{ReportID: report.ID, ExternalFileRef: "r/b.jpg"}).Error)
	require.NoError(t, fx.db.Create(&models.AISummary{ReportID: report.ID, ExecutiveSummary: "ok"}).Error)
	_, err = fx.svc.Transition(ctx, report.ID, ActionSubmit, "director", "")
	require.NoError(t, err)

	refs, err := fx.svc.Delete(ctx, report.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r/a.jpg", "r/a_thumb.jpg", "r/b.jpg"}, refs)

	for _, model := range []interface{}{&models.Response{}, &models.Photo{}, &models.AISummary{}, &models.ReportTransition{}} {
		var n int64
		require.NoError(t, fx.db.Model(model).Where("report_id = ?", report.ID).Count(&n).Error)
		assert.Zero(t, n, "%T left behind", model)
	}

	_, err = fx.svc.Get(ctx, report.ID)
	assert.ErrorIs(t, err, models.ErrReportNotFound)

	remaining, err := fx.svc.Get(ctx, followUp.ID)
	require.NoError(t, err)
	assert.Nil(t, remaining.PreviousReportID)

	_, err = fx.svc.Delete(ctx, report.ID)
	assert.ErrorIs(t, err, models.ErrReportNotFound)
}
