package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/JaimeStill/renewal/internal/collaborators"
	"github.com/JaimeStill/renewal/internal/workflows"
)

type handler func(ctx context.Context, w *workflows.Workflow, s *workflows.Step) (any, error)

// Executor dispatches steps to collaborators by kind.
type Executor struct {
	handlers map[workflows.Kind]handler
}

// NewExecutor builds the dispatch table from set. It fails if any
// collaborator is missing or any step kind has no handler.
func NewExecutor(set collaborators.Set) (*Executor, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}

	e := &Executor{
		handlers: map[workflows.Kind]handler{
			workflows.KindNotifyEmail:        notify(set.Notifications, collaborators.ChannelEmail),
			workflows.KindNotifySMS:          notify(set.Notifications, collaborators.ChannelSMS),
			workflows.KindGenerateDocument:   generateDocument(set.Documents),
			workflows.KindRequestSignature:   requestSignature(set.Signatures),
			workflows.KindSendSurvey:         sendSurvey(set.Surveys),
			workflows.KindScheduleInspection: scheduleInspection(set.Inspections),
			workflows.KindRunAnalysis:        runAnalysis(set.Analysis),
			workflows.KindRequestReview:      requestReview(set.Reviews),
			workflows.KindAutomatedDecision:  automatedDecision(set.Decisions),
		},
	}

	for _, k := range workflows.Kinds {
		if _, ok := e.handlers[k]; !ok {
			return nil, fmt.Errorf("%w: no handler for %s", collaborators.ErrMissingCollaborator, k)
		}
	}

	return e, nil
}

// Execute runs step against its collaborator. Collaborator errors are
// wrapped in ErrTransientStepFailure; the executor never changes state.
func (e *Executor) Execute(ctx context.Context, w *workflows.Workflow, s *workflows.Step) Result {
	h, ok := e.handlers[s.Kind]
	if !ok {
		return Result{Err: fmt.Errorf("%w: unknown kind %s", ErrTransientStepFailure, s.Kind)}
	}

	out, err := h(ctx, w, s)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %s: %w", ErrTransientStepFailure, s.Kind, err)}
	}

	output, err := toMap(out)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: encode output: %w", ErrTransientStepFailure, err)}
	}
	return Result{Output: output}
}

func notify(svc collaborators.NotificationService, channel collaborators.Channel) handler {
	return func(ctx context.Context, w *workflows.Workflow, s *workflows.Step) (any, error) {
		templateID, err := param[string](s, "template_id")
		if err != nil {
			return nil, err
		}

		personalization := personalize(w)
		if offset, ok := s.Parameters["offset_days"]; ok {
			personalization["offset_days"] = offset
		}

		d, err := svc.Send(ctx, channel, templateID, personalization)
		if err != nil {
			return nil, err
		}
		if !d.Delivered {
			return nil, ErrUndelivered
		}
		return d, nil
	}
}

func generateDocument(svc collaborators.DocumentService) handler {
	return func(ctx context.Context, w *workflows.Workflow, s *workflows.Step) (any, error) {
		docTypes, err := param[[]string](s, "doc_types")
		if err != nil {
			return nil, err
		}

		refs, err := svc.Generate(ctx, docTypes, subjectContext(w), personalize(w))
		if err != nil {
			return nil, err
		}
		return map[string]any{"documents": refs}, nil
	}
}

func requestSignature(svc collaborators.SignatureService) handler {
	return func(ctx context.Context, w *workflows.Workflow, s *workflows.Step) (any, error) {
		docs, err := dependencyDocuments(w, s)
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			return nil, fmt.Errorf("%w: no documents from dependencies", ErrMissingParameter)
		}

		signers := []string{w.SubjectID}
		if _, ok := s.Parameters["signers"]; ok {
			if signers, err = param[[]string](s, "signers"); err != nil {
				return nil, err
			}
		}

		var offsets []int
		if _, ok := s.Parameters["reminder_offsets"]; ok {
			if offsets, err = param[[]int](s, "reminder_offsets"); err != nil {
				return nil, err
			}
		}

		return svc.Request(ctx, docs, signers, offsets)
	}
}

func sendSurvey(svc collaborators.SurveyService) handler {
	return func(ctx context.Context, w *workflows.Workflow, s *workflows.Step) (any, error) {
		surveyType, err := param[string](s, "survey_type")
		if err != nil {
			return nil, err
		}
		channels, err := param[[]collaborators.Channel](s, "channels")
		if err != nil {
			return nil, err
		}
		return svc.Send(ctx, surveyType, channels, subjectContext(w))
	}
}

func scheduleInspection(svc collaborators.InspectionService) handler {
	return func(ctx context.Context, w *workflows.Workflow, s *workflows.Step) (any, error) {
		inspectionType, err := param[string](s, "inspection_type")
		if err != nil {
			return nil, err
		}
		return svc.Schedule(ctx, inspectionType, subjectContext(w))
	}
}

func runAnalysis(svc collaborators.AnalysisService) handler {
	return func(ctx context.Context, w *workflows.Workflow, s *workflows.Step) (any, error) {
		analysisType, err := param[string](s, "analysis_type")
		if err != nil {
			return nil, err
		}
		return svc.Run(ctx, analysisType, subjectContext(w))
	}
}

func requestReview(svc collaborators.ReviewService) handler {
	return func(ctx context.Context, w *workflows.Workflow, s *workflows.Step) (any, error) {
		reviewType, err := param[string](s, "review_type")
		if err != nil {
			return nil, err
		}
		return svc.Request(ctx, reviewType, subjectContext(w))
	}
}

func automatedDecision(svc collaborators.DecisionService) handler {
	return func(ctx context.Context, w *workflows.Workflow, s *workflows.Step) (any, error) {
		decisionType, err := param[string](s, "decision_type")
		if err != nil {
			return nil, err
		}
		return svc.Decide(ctx, decisionType, subjectContext(w))
	}
}

// param decodes a step parameter into T. Parameters may hold either native
// Go values or values decoded from JSON, so both go through a JSON round trip.
func param[T any](s *workflows.Step, key string) (T, error) {
	var v T

	raw, ok := s.Parameters[key]
	if !ok {
		return v, fmt.Errorf("%w: %s", ErrMissingParameter, key)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return v, fmt.Errorf("encode parameter %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode parameter %s: %w", key, err)
	}
	return v, nil
}

func dependencyDocuments(w *workflows.Workflow, s *workflows.Step) ([]collaborators.DocRef, error) {
	var docs []collaborators.DocRef
	for _, id := range s.Dependencies {
		dep := w.Step(id)
		if dep == nil {
			continue
		}
		raw, ok := dep.Output["documents"]
		if !ok {
			continue
		}

		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode documents of %s: %w", id, err)
		}
		var refs []collaborators.DocRef
		if err := json.Unmarshal(data, &refs); err != nil {
			return nil, fmt.Errorf("decode documents of %s: %w", id, err)
		}
		docs = append(docs, refs...)
	}
	return docs, nil
}

func toMap(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func personalize(w *workflows.Workflow) map[string]any {
	p := maps.Clone(w.PersonalizationContext)
	if p == nil {
		p = make(map[string]any)
	}
	p["subject_id"] = w.SubjectID
	p["deadline"] = w.Deadline.Format(time.DateOnly)
	return p
}

func subjectContext(w *workflows.Workflow) map[string]any {
	return map[string]any{
		"workflow_id":         w.ID.String(),
		"subject_id":          w.SubjectID,
		"related_entity_ids":  maps.Clone(w.RelatedEntityIDs),
		"class":               int(w.Class),
		"success_probability": w.SuccessProbability,
		"risk_flags":          w.RiskFlags,
		"monetary_value":      w.MonetaryValue,
		"deadline":            w.Deadline.Format(time.DateOnly),
		"personalization":     maps.Clone(w.PersonalizationContext),
	}
}
