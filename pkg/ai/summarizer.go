// Package ai generates executive summaries of reports and note suggestions
// for failed checklist items through a language model.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"p9e.in/qareports/config"
	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/metrics"
	"p9e.in/qareports/pkg/reports"
)

const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 3000
	noteMaxTokens      = 200
	lockTTL            = 2 * time.Minute
	defaultBurst       = 2
)

// NewModel builds the OpenAI chat model. It returns nil without an API key,
// which leaves AI features disabled.
func NewModel(s config.Settings) (llms.Model, error) {
	if s.OpenAIKey == "" {
		return nil, nil
	}
	llm, err := openai.New(openai.WithToken(s.OpenAIKey), openai.WithModel(s.AIModel))
	if err != nil {
		return nil, fmt.Errorf("failed to create openai model: %w", err)
	}
	return llm, nil
}

// Summarizer turns a report into a stored AISummary.
type Summarizer struct {
	db        *gorm.DB
	reports   *reports.Service
	model     llms.Model
	modelName string
	limiter   *rate.Limiter
	locker    *redislock.Client
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Summarizer)

// WithLocker serialises generation per report across processes.
func WithLocker(l *redislock.Client) Option {
	return func(s *Summarizer) { s.locker = l }
}

// WithRatePerMinute caps model calls.
func WithRatePerMinute(n int) Option {
	return func(s *Summarizer) {
		if n > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(float64(n)/60.0), defaultBurst)
		}
	}
}

func WithModelName(name string) Option {
	return func(s *Summarizer) { s.modelName = name }
}

func WithClock(now func() time.Time) Option {
	return func(s *Summarizer) { s.now = now }
}

// NewSummarizer accepts a nil model; Generate and the AI step of
// SuggestNote then report ErrAINotConfigured or fall back.
func NewSummarizer(db *gorm.DB, svc *reports.Service, model llms.Model, opts ...Option) *Summarizer {
	s := &Summarizer{
		db:      db,
		reports: svc,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(10.0/60.0), defaultBurst),
		log:     config.ComponentLogger("ai"),
		metrics: metrics.Get(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether a model is available.
func (s *Summarizer) Configured() bool { return s.model != nil }

func (s *Summarizer) call(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}
	return llms.GenerateFromSinglePrompt(ctx, s.model, prompt,
		llms.WithTemperature(summaryTemperature),
		llms.WithMaxTokens(maxTokens),
	)
}

// Generate builds the prompt for a report, asks the model and replaces the
// stored summary with the result.
func (s *Summarizer) Generate(ctx context.Context, reportID uuid.UUID) (*models.AISummary, error) {
	if !s.Configured() {
		return nil, models.ErrAINotConfigured
	}

	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, "lock:summary:"+reportID.String(), lockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			s.metrics.AISummaries.WithLabelValues("busy").Inc()
			return nil, models.ErrSummaryInProgress
		}
		if err != nil {
			config.LogError(s.log, "ai", "Generate", "failed to obtain summary lock", reportID, err)
			return nil, fmt.Errorf("failed to obtain summary lock: %w", err)
		}
		defer func() { _ = lock.Release(ctx) }()
	}

	view, err := s.reports.View(ctx, reportID)
	if err != nil {
		return nil, err
	}
	cmp, err := s.reports.Comparison(ctx, reportID)
	if err != nil {
		return nil, err
	}

	text, err := s.call(ctx, buildSummaryPrompt(view, cmp.Deltas), summaryMaxTokens)
	if err != nil {
		s.metrics.AISummaries.WithLabelValues("error").Inc()
		config.LogError(s.log, "ai", "Generate", "model call failed", reportID, err)
		return nil, fmt.Errorf("failed to generate summary: %w", err)
	}
	payload, err := parseSummary(text)
	if err != nil {
		s.metrics.AISummaries.WithLabelValues("error").Inc()
		config.LogError(s.log, "ai", "Generate", "unparseable model output", reportID, err)
		return nil, err
	}

	summary := &models.AISummary{
		ReportID:         reportID,
		ExecutiveSummary: payload.ExecutiveSummary,
		Issues:           datatypes.NewJSONType(nonNil(payload.Issues)),
		PointsOfInterest: datatypes.NewJSONType(nonNil(payload.POI)),
		Comparison:       datatypes.NewJSONType(payload.Comparison),
		Model:            s.modelName,
		GeneratedAt:      s.now(),
	}
	if r := models.OverallRating(payload.SuggestedRating); r.Valid() && r != models.OverallPending {
		summary.SuggestedRating = r
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("report_id = ?", reportID).Delete(&models.AISummary{}).Error; err != nil {
			return fmt.Errorf("failed to clear summary: %w", err)
		}
		if err := tx.Create(summary).Error; err != nil {
			return fmt.Errorf("failed to save summary: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.AISummaries.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.AISummaries.WithLabelValues("success").Inc()
	s.log.WithFields(logrus.Fields{"report_id": reportID, "issues": len(payload.Issues)}).Info("🤖 executive summary generated")
	return summary, nil
}

// Summary returns the stored summary of a report.
func (s *Summarizer) Summary(ctx context.Context, reportID uuid.UUID) (*models.AISummary, error) {
	var summary models.AISummary
	err := s.db.WithContext(ctx).Where("report_id = ?", reportID).First(&summary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("report %s: %w", reportID, models.ErrSummaryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}
	return &summary, nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
