package services

import (
	"time"

	"intake/internal/models"
)

// SessionTransitions lists the allowed session state changes.
// COMPLETE is terminal; RESET only leads back to email collection.
var SessionTransitions = map[models.SessionState]map[models.SessionState]bool{
	models.SessionPending:        {models.SessionEmailCollected: true},
	models.SessionEmailCollected: {models.SessionEmailCollected: true, models.SessionEmailVerified: true, models.SessionReset: true},
	models.SessionReset:          {models.SessionEmailCollected: true},
	models.SessionEmailVerified:  {models.SessionComplete: true},
	models.SessionComplete:       {},
}

func canTransition(current, to models.SessionState) bool {
	nexts, ok := SessionTransitions[current]
	if !ok {
		return false
	}
	return nexts[to]
}

// transition moves s to the target state and keeps CompletedAt in step with it.
func transition(s *models.Session, to models.SessionState, now time.Time) error {
	if !canTransition(s.State, to) {
		return ErrInvalidTransition
	}
	s.State = to
	s.UpdatedAt = now
	if to == models.SessionComplete {
		s.CompletedAt = &now
	} else {
		s.CompletedAt = nil
	}
	return nil
}
