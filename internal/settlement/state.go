package settlement

import "cuadre-backend/internal/models"

type Event string

const (
	EventSubmit   Event = "submit"
	EventValidate Event = "validate"
	EventObserve  Event = "observe"
)

// Next returns the state reached by applying ev to from.
// Validated and Observed are terminal; an observed batch is never retried in place.
func Next(from models.SettlementState, ev Event) (models.SettlementState, bool) {
	switch from {
	case models.StateUnsettled:
		if ev == EventSubmit {
			return models.StatePendingValidation, true
		}
	case models.StatePendingValidation:
		switch ev {
		case EventValidate:
			return models.StateValidated, true
		case EventObserve:
			return models.StateObserved, true
		}
	case models.StateValidated, models.StateObserved:
	}
	return from, false
}

func transition(entity string, id uint, from models.SettlementState, ev Event) (models.SettlementState, error) {
	to, ok := Next(from, ev)
	if !ok {
		return from, &InvalidStateTransitionError{Entity: entity, ID: id, From: from, Event: ev}
	}
	return to, nil
}

func Terminal(s models.SettlementState) bool {
	return s == models.StateValidated || s == models.StateObserved
}
