// Package collaborators defines the external services the engine delegates
// side effects to. The engine depends only on these interfaces.
package collaborators

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMissingCollaborator indicates a Set lacks a service the engine requires.
var ErrMissingCollaborator = errors.New("missing collaborator")

// Channel is a notification delivery channel.
type Channel string

// Delivery channels.
const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Delivery reports the outcome of one notification.
type Delivery struct {
	Delivered         bool   `json:"delivered"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// DocRef references a generated document.
type DocRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// Envelope identifies a signature request.
type Envelope struct {
	EnvelopeID string `json:"envelope_id"`
	SigningURL string `json:"signing_url"`
}

// SurveyDelivery reports where a survey was sent.
type SurveyDelivery struct {
	SurveyURL       string           `json:"survey_url"`
	DeliveryResults map[Channel]bool `json:"delivery_results"`
}

// Inspection identifies a scheduled property inspection.
type Inspection struct {
	InspectionID string    `json:"inspection_id"`
	ScheduledAt  time.Time `json:"scheduled_at"`
}

// Review identifies a requested human review.
type Review struct {
	ReviewID string `json:"review_id"`
}

// Decision is the result of an automated decision.
type Decision struct {
	Outcome string         `json:"outcome"`
	Details map[string]any `json:"details,omitempty"`
}

// NotificationService delivers templated messages.
type NotificationService interface {
	Send(ctx context.Context, channel Channel, templateID string, personalization map[string]any) (Delivery, error)
}

// DocumentService renders renewal documents.
type DocumentService interface {
	Generate(ctx context.Context, docTypes []string, data, personalization map[string]any) ([]DocRef, error)
}

// SignatureService requests electronic signatures.
type SignatureService interface {
	Request(ctx context.Context, documents []DocRef, signers []string, reminderOffsets []int) (Envelope, error)
}

// SurveyService sends engagement surveys.
type SurveyService interface {
	Send(ctx context.Context, surveyType string, channels []Channel, subjectContext map[string]any) (SurveyDelivery, error)
}

// InspectionService books property inspections.
type InspectionService interface {
	Schedule(ctx context.Context, inspectionType string, subjectContext map[string]any) (Inspection, error)
}

// AnalysisService runs renewal analyses.
type AnalysisService interface {
	Run(ctx context.Context, analysisType string, context map[string]any) (map[string]any, error)
}

// ReviewService requests a human review.
type ReviewService interface {
	Request(ctx context.Context, reviewType string, context map[string]any) (Review, error)
}

// DecisionService makes automated decisions.
type DecisionService interface {
	Decide(ctx context.Context, decisionType string, context map[string]any) (Decision, error)
}

// Set bundles one implementation of every collaborator.
type Set struct {
	Notifications NotificationService
	Documents     DocumentService
	Signatures    SignatureService
	Surveys       SurveyService
	Inspections   InspectionService
	Analysis      AnalysisService
	Reviews       ReviewService
	Decisions     DecisionService
}

// Validate returns ErrMissingCollaborator naming the first nil service.
func (s Set) Validate() error {
	missing := func(name string) error {
		return fmt.Errorf("%w: %s", ErrMissingCollaborator, name)
	}
	switch {
	case s.Notifications == nil:
		return missing("notifications")
	case s.Documents == nil:
		return missing("documents")
	case s.Signatures == nil:
		return missing("signatures")
	case s.Surveys == nil:
		return missing("surveys")
	case s.Inspections == nil:
		return missing("inspections")
	case s.Analysis == nil:
		return missing("analysis")
	case s.Reviews == nil:
		return missing("reviews")
	case s.Decisions == nil:
		return missing("decisions")
	}
	return nil
}
