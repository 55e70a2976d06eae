package planner

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JaimeStill/renewal/internal/workflows"
)

// Trigger names for conditional steps.
const (
	TriggerLowSuccessProbability = "low_success_probability"
	TriggerLowQualityProperty    = workflows.FlagLowQualityProperty
)

//go:embed templates.yaml
var defaultTemplates []byte

// ClassTemplate is the step blueprint for one workflow class.
type ClassTemplate struct {
	Class            workflows.Class `yaml:"class"`
	Offsets          []int           `yaml:"offsets"`
	AnalysisType     string          `yaml:"analysis_type"`
	NoticeTemplate   string          `yaml:"notice_template"`
	FollowUpTemplate string          `yaml:"follow_up_template"`
	DocumentTypes    []string        `yaml:"document_types"`
}

// Blueprint is the step emitted when a conditional trigger applies.
type Blueprint struct {
	Kind       workflows.Kind `yaml:"kind"`
	Parameters map[string]any `yaml:"parameters"`
}

// TailReminders describes the fixed SMS reminders before the deadline.
type TailReminders struct {
	Offsets    []int  `yaml:"offsets"`
	TemplateID string `yaml:"template_id"`
}

// Library is the static lookup of blueprints by class and trigger.
type Library struct {
	Tail     TailReminders        `yaml:"tail_reminders"`
	Classes  []ClassTemplate      `yaml:"classes"`
	Triggers map[string]Blueprint `yaml:"triggers"`
}

// DefaultLibrary returns the embedded template library.
func DefaultLibrary() (*Library, error) {
	return ParseLibrary(defaultTemplates)
}

// LoadLibrary reads a template library from a YAML file.
func LoadLibrary(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return ParseLibrary(data)
}

// ParseLibrary decodes and validates a YAML template library.
func ParseLibrary(data []byte) (*Library, error) {
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if err := lib.validate(); err != nil {
		return nil, err
	}
	return &lib, nil
}

// Class returns the template for c or ErrMissingTemplate.
func (l *Library) Class(c workflows.Class) (ClassTemplate, error) {
	for _, t := range l.Classes {
		if t.Class == c {
			return t, nil
		}
	}
	return ClassTemplate{}, fmt.Errorf("%w: class %s", ErrMissingTemplate, c)
}

// Trigger returns the blueprint for a conditional trigger or ErrMissingTemplate.
func (l *Library) Trigger(name string) (Blueprint, error) {
	b, ok := l.Triggers[name]
	if !ok {
		return Blueprint{}, fmt.Errorf("%w: trigger %s", ErrMissingTemplate, name)
	}
	return b, nil
}

func (l *Library) validate() error {
	if err := descending(l.Tail.Offsets); err != nil {
		return fmt.Errorf("%w: tail reminders: %w", ErrInvalidTemplate, err)
	}

	seen := make(map[workflows.Class]bool)
	for _, t := range l.Classes {
		if seen[t.Class] {
			return fmt.Errorf("%w: class %d defined twice", ErrInvalidTemplate, t.Class)
		}
		seen[t.Class] = true

		if len(t.Offsets) == 0 {
			return fmt.Errorf("%w: class %d has no offsets", ErrInvalidTemplate, t.Class)
		}
		if err := descending(t.Offsets); err != nil {
			return fmt.Errorf("%w: class %d: %w", ErrInvalidTemplate, t.Class, err)
		}
	}

	for name, b := range l.Triggers {
		if !b.Kind.Valid() {
			return fmt.Errorf("%w: trigger %s has unknown kind %q", ErrInvalidTemplate, name, b.Kind)
		}
	}

	return nil
}

func descending(offsets []int) error {
	for i, o := range offsets {
		if o < 0 {
			return fmt.Errorf("negative offset %d", o)
		}
		if i > 0 && o >= offsets[i-1] {
			return fmt.Errorf("offsets must be strictly descending: %v", offsets)
		}
	}
	return nil
}
