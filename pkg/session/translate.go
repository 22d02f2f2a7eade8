package session

import (
	"fmt"
	"strings"

	"github.com/opd-ai/ambientworld/pkg/worldengine"
	"github.com/opd-ai/ambientworld/pkg/worldstate"
)

// validationError carries the error code to reply with, distinct from a
// plain error so the caller doesn't need a second switch to pick a code.
type validationError struct {
	code    string
	message string
}

func (e *validationError) Error() string { return e.message }

func invalidAction(format string, args ...any) *validationError {
	return &validationError{code: CodeInvalidAction, message: fmt.Sprintf(format, args...)}
}

func validationFailure(format string, args ...any) *validationError {
	return &validationError{code: CodeValidationError, message: fmt.Sprintf(format, args...)}
}

// translatePerform validates a perform payload and returns the worldengine
// Event to enqueue plus a human-readable action name for the ack, or a
// validationError describing why it was rejected.
func translatePerform(p PerformActionPayload, table *worldstate.Table) (worldengine.Event, string, float64, *validationError) {
	switch {
	case p.Pulse != nil:
		return actionEvent(worldengine.Pulse, p.Pulse.Intensity, "Pulse")
	case p.Calm != nil:
		return actionEvent(worldengine.Calm, p.Calm.Intensity, "Calm")
	case p.Stir != nil:
		return actionEvent(worldengine.Stir, p.Stir.Intensity, "Stir")
	case p.Tense != nil:
		return actionEvent(worldengine.Tense, p.Tense.Intensity, "Tense")
	case p.Heat != nil:
		return actionEvent(worldengine.Heat, p.Heat.Intensity, "Heat")
	case p.Scene != nil:
		name, verr := validateSceneName(p.Scene.Name, table)
		if verr != nil {
			return worldengine.Event{}, "", 0, verr
		}
		return worldengine.PerformSceneEvent(name), "Scene", 0, nil
	case p.Freeze != nil:
		if p.Freeze.Seconds <= 0 {
			return worldengine.Event{}, "", 0, validationFailure("freeze seconds must be > 0, got %v", p.Freeze.Seconds)
		}
		return worldengine.PerformFreezeEvent(p.Freeze.Seconds), "Freeze", 0, nil
	default:
		return worldengine.Event{}, "", 0, invalidAction("perform payload names no recognized action")
	}
}

func actionEvent(kind worldengine.ActionKind, intensity float64, name string) (worldengine.Event, string, float64, *validationError) {
	if intensity < 0 || intensity > 1 {
		return worldengine.Event{}, "", 0, validationFailure("intensity must be within [0, 1], got %v", intensity)
	}
	return worldengine.PerformActionEvent(kind, intensity), name, intensity, nil
}

// validateSceneName trims whitespace, rejects empty names, and rejects
// names absent from table — unknown scenes never reach the engine.
func validateSceneName(name string, table *worldstate.Table) (string, *validationError) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", validationFailure("scene_name must not be empty")
	}
	if _, ok := table.Get(trimmed); !ok {
		return "", validationFailure("unknown scene %q", trimmed)
	}
	return trimmed, nil
}
