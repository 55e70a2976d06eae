package collaborators

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

type guard struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newGuard(name string, cfg *Config, logger *slog.Logger) *guard {
	failures := uint32(cfg.BreakerFailures)

	return &guard{
		name: name,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: cfg.BreakerTimeoutDuration(),
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("breaker state changed",
					"collaborator", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		}),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
	}
}

// call waits for a rate token, then runs fn through the breaker. An open
// breaker fails fast with gobreaker.ErrOpenState.
func call[T any](ctx context.Context, g *guard, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := g.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("%s rate limit: %w", g.name, err)
	}

	out, err := g.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, fmt.Errorf("%s: %w", g.name, err)
	}

	v, _ := out.(T)
	return v, nil
}

// Resilient wraps every service in set with a per-collaborator circuit
// breaker and rate limiter.
func Resilient(set Set, cfg *Config, logger *slog.Logger) Set {
	logger = logger.With("system", "collaborators")

	return Set{
		Notifications: &notifications{next: set.Notifications, g: newGuard("notifications", cfg, logger)},
		Documents:     &documents{next: set.Documents, g: newGuard("documents", cfg, logger)},
		Signatures:    &signatures{next: set.Signatures, g: newGuard("signatures", cfg, logger)},
		Surveys:       &surveys{next: set.Surveys, g: newGuard("surveys", cfg, logger)},
		Inspections:   &inspections{next: set.Inspections, g: newGuard("inspections", cfg, logger)},
		Analysis:      &analysis{next: set.Analysis, g: newGuard("analysis", cfg, logger)},
		Reviews:       &reviews{next: set.Reviews, g: newGuard("reviews", cfg, logger)},
		Decisions:     &decisions{next: set.Decisions, g: newGuard("decisions", cfg, logger)},
	}
}

type notifications struct {
	next NotificationService
	g    *guard
}

func (s *notifications) Send(ctx context.Context, channel Channel, templateID string, personalization map[string]any) (Delivery, error) {
	return call(ctx, s.g, func(ctx context.Context) (Delivery, error) {
		return s.next.Send(ctx, channel, templateID, personalization)
	})
}

type documents struct {
	next DocumentService
	g    *guard
}

func (s *documents) Generate(ctx context.Context, docTypes []string, data, personalization map[string]any) ([]DocRef, error) {
	return call(ctx, s.g, func(ctx context.Context) ([]DocRef, error) {
		return s.next.Generate(ctx, docTypes, data, personalization)
	})
}

type signatures struct {
	next SignatureService
	g    *guard
}

func (s *signatures) Request(ctx context.Context, docs []DocRef, signers []string, reminderOffsets []int) (Envelope, error) {
	return call(ctx, s.g, func(ctx context.Context) (Envelope, error) {
		return s.next.Request(ctx, docs, signers, reminderOffsets)
	})
}

type surveys struct {
	next SurveyService
	g    *guard
}

func (s *surveys) Send(ctx context.Context, surveyType string, channels []Channel, subjectContext map[string]any) (SurveyDelivery, error) {
	return call(ctx, s.g, func(ctx context.Context) (SurveyDelivery, error) {
		return s.next.Send(ctx, surveyType, channels, subjectContext)
	})
}

type inspections struct {
	next InspectionService
	g    *guard
}

func (s *inspections) Schedule(ctx context.Context, inspectionType string, subjectContext map[string]any) (Inspection, error) {
	return call(ctx, s.g, func(ctx context.Context) (Inspection, error) {
		return s.next.Schedule(ctx, inspectionType, subjectContext)
	})
}

type analysis struct {
	next AnalysisService
	g    *guard
}

func (s *analysis) Run(ctx context.Context, analysisType string, input map[string]any) (map[string]any, error) {
	return call(ctx, s.g, func(ctx context.Context) (map[string]any, error) {
		return s.next.Run(ctx, analysisType, input)
	})
}

type reviews struct {
	next ReviewService
	g    *guard
}

func (s *reviews) Request(ctx context.Context, reviewType string, input map[string]any) (Review, error) {
	return call(ctx, s.g, func(ctx context.Context) (Review, error) {
		return s.next.Request(ctx, reviewType, input)
	})
}

type decisions struct {
	next DecisionService
	g    *guard
}

func (s *decisions) Decide(ctx context.Context, decisionType string, input map[string]any) (Decision, error) {
	return call(ctx, s.g, func(ctx context.Context) (Decision, error) {
		return s.next.Decide(ctx, decisionType, input)
	})
}
