package funnel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrUnknownStepType = errors.New("unknown step type")
	ErrDuplicateStep   = errors.New("duplicate step id")
	ErrMissingStepID   = errors.New("step id is required")
)

var kindAliases = map[string]Kind{
	"welcome":       KindWelcome,
	"question":      KindQuestion,
	"message":       KindMessage,
	"lead-capture":  KindLeadCapture,
	"leadCapture":   KindLeadCapture,
	"lead_capture":  KindLeadCapture,
	"calendar":      KindCalendar,
	"calendarEmbed": KindCalendar,
}

// ParseKind maps a wire type string to its Kind.
func ParseKind(s string) (Kind, error) {
	k, ok := kindAliases[s]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStepType, s)
	}
	return k, nil
}

// Parse decodes a funnel definition and rejects duplicate or missing step ids.
func Parse(data []byte) (*Funnel, error) {
	var f Funnel
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(f.Steps))
	for i, s := range f.Steps {
		id := s.Base().ID
		if id == "" {
			return nil, fmt.Errorf("step %d: %w", i, ErrMissingStepID)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, id)
		}
		seen[id] = true
	}

	return &f, nil
}

func (f *Funnel) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      string            `json:"id"`
		Name    string            `json:"name"`
		Steps   []json.RawMessage `json:"steps"`
		Scoring *ScoringConfig    `json:"scoring"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode funnel: %w", err)
	}

	steps := make([]Step, 0, len(raw.Steps))
	for i, rs := range raw.Steps {
		s, err := decodeStep(rs)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, s)
	}

	f.ID = raw.ID
	f.Name = raw.Name
	f.Steps = steps
	f.Scoring = raw.Scoring
	return nil
}

func decodeStep(data json.RawMessage) (Step, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to decode step: %w", err)
	}

	kind, err := ParseKind(head.Type)
	if err != nil {
		return nil, err
	}

	var s Step
	switch kind {
	case KindWelcome:
		s = &WelcomeStep{}
	case KindQuestion:
		s = &QuestionStep{}
	case KindMessage:
		s = &MessageStep{}
	case KindLeadCapture:
		s = &LeadCaptureStep{}
	case KindCalendar:
		s = &CalendarStep{}
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to decode %s step: %w", kind, err)
	}
	return s, nil
}

// MarshalStep encodes a step with its "type" discriminator.
func MarshalStep(s Step) ([]byte, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(strconv.Quote(string(s.Kind())))
	return json.Marshal(fields)
}

func (f Funnel) MarshalJSON() ([]byte, error) {
	steps := make([]json.RawMessage, len(f.Steps))
	for i, s := range f.Steps {
		b, err := MarshalStep(s)
		if err != nil {
			return nil, fmt.Errorf("failed to encode step %s: %w", s.Base().ID, err)
		}
		steps[i] = b
	}

	return json.Marshal(struct {
		ID      string            `json:"id"`
		Name    string            `json:"name"`
		Steps   []json.RawMessage `json:"steps"`
		Scoring *ScoringConfig    `json:"scoring,omitempty"`
	}{f.ID, f.Name, steps, f.Scoring})
}
