package collaborators

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DryRun returns a Set whose services log each request and report success
// with generated identifiers. It backs the server until real providers are
// configured.
func DryRun(logger *slog.Logger) Set {
	d := &dryRun{logger: logger.With("system", "dryrun")}
	return Set{
		Notifications: d,
		Documents:     d,
		Signatures:    d,
		Surveys:       dryRunSurveys{d},
		Inspections:   d,
		Analysis:      d,
		Reviews:       dryRunReviews{d},
		Decisions:     d,
	}
}

type dryRun struct {
	logger *slog.Logger
}

func (d *dryRun) Send(ctx context.Context, channel Channel, templateID string, _ map[string]any) (Delivery, error) {
	id := uuid.NewString()
	d.logger.InfoContext(ctx, "notification sent",
		"channel", channel,
		"template_id", templateID,
		"message_id", id,
	)
	return Delivery{Delivered: true, ProviderMessageID: id}, nil
}

func (d *dryRun) Generate(ctx context.Context, docTypes []string, _, _ map[string]any) ([]DocRef, error) {
	refs := make([]DocRef, 0, len(docTypes))
	for _, t := range docTypes {
		refs = append(refs, DocRef{ID: uuid.NewString(), Type: t})
	}
	d.logger.InfoContext(ctx, "documents generated", "count", len(refs))
	return refs, nil
}

func (d *dryRun) Request(ctx context.Context, docs []DocRef, signers []string, _ []int) (Envelope, error) {
	id := uuid.NewString()
	d.logger.InfoContext(ctx, "signature requested",
		"envelope_id", id,
		"documents", len(docs),
		"signers", len(signers),
	)
	return Envelope{EnvelopeID: id, SigningURL: "https://sign.invalid/" + id}, nil
}

func (d *dryRun) Schedule(ctx context.Context, inspectionType string, _ map[string]any) (Inspection, error) {
	id := uuid.NewString()
	at := time.Now().UTC().AddDate(0, 0, 7)
	d.logger.InfoContext(ctx, "inspection scheduled",
		"inspection_type", inspectionType,
		"inspection_id", id,
	)
	return Inspection{InspectionID: id, ScheduledAt: at}, nil
}

func (d *dryRun) Run(ctx context.Context, analysisType string, _ map[string]any) (map[string]any, error) {
	d.logger.InfoContext(ctx, "analysis run", "analysis_type", analysisType)
	return map[string]any{"analysis_type": analysisType, "status": "complete"}, nil
}

func (d *dryRun) Decide(ctx context.Context, decisionType string, _ map[string]any) (Decision, error) {
	d.logger.InfoContext(ctx, "decision made", "decision_type", decisionType)
	return Decision{Outcome: "deferred"}, nil
}

type dryRunSurveys struct{ *dryRun }

func (d dryRunSurveys) Send(ctx context.Context, surveyType string, channels []Channel, _ map[string]any) (SurveyDelivery, error) {
	results := make(map[Channel]bool, len(channels))
	for _, c := range channels {
		results[c] = true
	}
	id := uuid.NewString()
	d.logger.InfoContext(ctx, "survey sent", "survey_type", surveyType, "survey_id", id)
	return SurveyDelivery{SurveyURL: "https://survey.invalid/" + id, DeliveryResults: results}, nil
}

type dryRunReviews struct{ *dryRun }

func (d dryRunReviews) Request(ctx context.Context, reviewType string, _ map[string]any) (Review, error) {
	id := uuid.NewString()
	d.logger.InfoContext(ctx, "review requested", "review_type", reviewType, "review_id", id)
	return Review{ReviewID: id}, nil
}
