package api

import (
	"context"
	"errors"
	"strings"
	"time"
)

// StepFunc is a single step in a scenario. It receives the value produced
// by the previous successful step (nil for the first step) and returns the
// next value.
//
// Every fluent helper reduces to this one shape.
type StepFunc func(ctx context.Context, value any) (any, error)

// Phase is the primary category of a step.
type Phase int

const (
	PhaseGiven Phase = iota
	PhaseWhen
	PhaseThen
)

func (p Phase) String() string {
	switch p {
	case PhaseGiven:
		return "Given"
	case PhaseWhen:
		return "When"
	case PhaseThen:
		return "Then"
	default:
		return "Unknown"
	}
}

// ParsePhase maps a keyword ("Given", "when", ...) to a Phase.
func ParsePhase(s string) (Phase, bool) {
	switch normalizeKeyword(s) {
	case "given":
		return PhaseGiven, true
	case "when":
		return PhaseWhen, true
	case "then":
		return PhaseThen, true
	}
	return PhaseGiven, false
}

// Word says whether a step opens a phase or continues the current one.
type Word int

const (
	WordPrimary Word = iota
	WordAnd
	WordBut
)

func (w Word) String() string {
	switch w {
	case WordPrimary:
		return "Primary"
	case WordAnd:
		return "And"
	case WordBut:
		return "But"
	default:
		return "Unknown"
	}
}

// ParseWord maps "And"/"But" to a continuation Word. Anything else is
// WordPrimary.
func ParseWord(s string) Word {
	switch normalizeKeyword(s) {
	case "and":
		return WordAnd
	case "but":
		return WordBut
	}
	return WordPrimary
}

// KindOf returns the display label of a step: the phase name for primary
// steps, "And" or "But" for continuations.
func KindOf(phase Phase, word Word) string {
	switch word {
	case WordAnd:
		return "And"
	case WordBut:
		return "But"
	default:
		return phase.String()
	}
}

// StepMetadata describes a queued step before it runs.
type StepMetadata struct {
	Kind  string
	Title string
	Phase Phase
	Word  Word
}

// NewStepMetadata builds metadata with Kind derived from phase and word.
func NewStepMetadata(phase Phase, word Word, title string) StepMetadata {
	return StepMetadata{
		Kind:  KindOf(phase, word),
		Title: title,
		Phase: phase,
		Word:  word,
	}
}

// EffectiveTitle returns Title, or the phase name when Title is empty.
func (m StepMetadata) EffectiveTitle() string {
	if m.Title != "" {
		return m.Title
	}
	return m.Phase.String()
}

// Resolved returns a copy of m whose Title is the effective title.
func (m StepMetadata) Resolved() StepMetadata {
	m.Title = m.EffectiveTitle()
	return m
}

// StepResult is the outcome of one processed queue entry.
// Results are appended in execution order and never modified afterwards.
type StepResult struct {
	Kind    string
	Title   string
	Phase   Phase
	Word    Word
	Elapsed time.Duration
	Err     error
}

// Passed reports whether the step ran without error.
func (r StepResult) Passed() bool { return r.Err == nil }

// Skipped reports whether the entry was skip-marked instead of executed.
func (r StepResult) Skipped() bool { return errors.Is(r.Err, ErrSkipped) }

// Status is a short label: "passed", "failed" or "skipped".
func (r StepResult) Status() string {
	switch {
	case r.Err == nil:
		return "passed"
	case r.Skipped():
		return "skipped"
	default:
		return "failed"
	}
}

// StepIO records the value lineage of a successful step.
type StepIO struct {
	Kind   string
	Title  string
	Input  any
	Output any
}

func normalizeKeyword(s string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), ":"))
}
