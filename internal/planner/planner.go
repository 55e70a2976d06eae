package planner

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/renewal/internal/evaluator"
	"github.com/JaimeStill/renewal/internal/workflows"
)

// Step ids emitted by the planner.
const (
	StepAnalysis   = "analysis"
	StepSurvey     = "survey"
	StepInspection = "inspection"
	StepDocument   = "document"
	StepSignature  = "signature"
)

// TermMonthlyRent is the recommended-terms key read as the monetary value.
const TermMonthlyRent = "monthly_rent"

// NoticeStepID names the notification step emitted offsetDays before the deadline.
func NoticeStepID(offsetDays int) string {
	return "notice-" + strconv.Itoa(offsetDays)
}

// ReminderStepID names the SMS reminder emitted offsetDays before the deadline.
func ReminderStepID(offsetDays int) string {
	return "sms-" + strconv.Itoa(offsetDays)
}

// Request carries everything needed to plan one subject's workflow.
type Request struct {
	SubjectID              string
	Deadline               time.Time
	Prediction             workflows.Prediction
	RelatedEntityIDs       map[string]string
	PersonalizationContext map[string]any
	Now                    time.Time
}

// Planner generates workflow plans from the template library. Condition
// names are resolved against the registry at generation time.
type Planner struct {
	library    *Library
	registry   *evaluator.Registry
	maxRetries int
}

// New creates a Planner. A non-positive maxRetries uses workflows.DefaultMaxRetries.
func New(library *Library, registry *evaluator.Registry, maxRetries int) *Planner {
	if maxRetries <= 0 {
		maxRetries = workflows.DefaultMaxRetries
	}
	return &Planner{
		library:    library,
		registry:   registry,
		maxRetries: maxRetries,
	}
}

// Generate builds a pending workflow for req. Steps whose planned instant is
// already past are kept and become due on the next tick.
func (p *Planner) Generate(req Request) (*workflows.Workflow, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	probability := req.Prediction.SuccessProbability
	class := ClassFor(probability)

	tpl, err := p.library.Class(class)
	if err != nil {
		return nil, err
	}

	b := &builder{
		deadline:   req.Deadline,
		maxRetries: p.maxRetries,
	}

	first := tpl.Offsets[0]
	initial := tpl.Offsets[min(1, len(tpl.Offsets)-1)]

	b.add(StepAnalysis, workflows.KindRunAnalysis, first, map[string]any{
		"analysis_type": tpl.AnalysisType,
	}, nil, nil)

	if probability < evaluator.LowProbabilityThreshold {
		bp, err := p.library.Trigger(TriggerLowSuccessProbability)
		if err != nil {
			return nil, err
		}
		b.add(StepSurvey, bp.Kind, first, bp.Parameters,
			[]string{StepAnalysis},
			[]string{evaluator.LowSuccessProbability})
	}

	if slices.Contains(req.Prediction.RiskFlags, workflows.FlagLowQualityProperty) {
		bp, err := p.library.Trigger(TriggerLowQualityProperty)
		if err != nil {
			return nil, err
		}
		b.add(StepInspection, bp.Kind, first, bp.Parameters,
			[]string{StepAnalysis},
			[]string{evaluator.QualityRiskFlagged})
	}

	b.add(NoticeStepID(initial), workflows.KindNotifyEmail, initial, map[string]any{
		"template_id": tpl.NoticeTemplate,
		"offset_days": initial,
	}, []string{StepAnalysis}, nil)

	for _, o := range tpl.Offsets {
		if o >= initial {
			continue
		}
		b.add(NoticeStepID(o), workflows.KindNotifyEmail, o, map[string]any{
			"template_id": tpl.FollowUpTemplate,
			"offset_days": o,
		}, nil, []string{evaluator.NoResponseReceived, evaluator.WorkflowNotCompleted})
	}

	b.add(StepDocument, workflows.KindGenerateDocument, initial, map[string]any{
		"doc_types": tpl.DocumentTypes,
	}, nil, []string{evaluator.SubjectInterestConfirmed})

	b.add(StepSignature, workflows.KindRequestSignature, initial, map[string]any{
		"reminder_offsets": p.library.Tail.Offsets,
	}, []string{StepDocument}, nil)

	for _, o := range p.library.Tail.Offsets {
		b.add(ReminderStepID(o), workflows.KindNotifySMS, o, map[string]any{
			"template_id": p.library.Tail.TemplateID,
			"offset_days": o,
		}, nil, []string{evaluator.NotRenewedYet, evaluator.DocumentsNotSigned})
	}

	for _, s := range b.steps {
		if err := p.registry.Validate(s.Conditions); err != nil {
			return nil, fmt.Errorf("step %s: %w", s.ID, err)
		}
	}

	monetary := monetaryValue(req.Prediction.RecommendedTerms)

	return &workflows.Workflow{
		ID:                     uuid.New(),
		SubjectID:              req.SubjectID,
		RelatedEntityIDs:       maps.Clone(req.RelatedEntityIDs),
		Class:                  class,
		Status:                 workflows.StatusPending,
		Priority:               Priority(probability, monetary, req.Deadline, req.Now),
		SuccessProbability:     probability,
		RiskFlags:              slices.Clone(req.Prediction.RiskFlags),
		MonetaryValue:          monetary,
		Deadline:               req.Deadline,
		PersonalizationContext: maps.Clone(req.PersonalizationContext),
		Steps:                  b.steps,
		CreatedAt:              req.Now,
		UpdatedAt:              req.Now,
	}, nil
}

type builder struct {
	deadline   time.Time
	maxRetries int
	steps      []workflows.Step
}

func (b *builder) add(id string, kind workflows.Kind, offsetDays int, params map[string]any, deps, conds []string) {
	at := b.deadline.AddDate(0, 0, -offsetDays)
	b.steps = append(b.steps, workflows.Step{
		ID:           id,
		Kind:         kind,
		Status:       workflows.StepPending,
		DueAt:        at,
		ScheduledAt:  at,
		Parameters:   maps.Clone(params),
		Dependencies: deps,
		Conditions:   conds,
		MaxRetries:   b.maxRetries,
	})
}

func validate(req Request) error {
	if req.SubjectID == "" {
		return fmt.Errorf("%w: subject id required", workflows.ErrInvalidCommand)
	}
	if req.Deadline.IsZero() {
		return fmt.Errorf("%w: deadline required", workflows.ErrInvalidCommand)
	}
	p := req.Prediction.SuccessProbability
	if !(p >= 0 && p <= 1) {
		return fmt.Errorf("%w: success probability %.3f outside [0,1]", workflows.ErrInvalidCommand, p)
	}
	return nil
}

func monetaryValue(terms map[string]any) float64 {
	switch v := terms[TermMonthlyRent].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}
