package app

import "live-quiz-service/internal/domain"

// RecordTabSwitch counts a focus loss reported by a participant's client.
// It never affects gameplay.
func (r *Registry) RecordTabSwitch(code, participantID string) (int, error) {
	rm, err := r.room(code)
	if err != nil {
		return 0, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.state != domain.StatePlaying {
		return 0, domain.ErrRoomNotPlaying
	}
	p, ok := rm.players[participantID]
	if !ok {
		return 0, domain.ErrUnknownParticipant
	}
	p.tabSwitches++
	return p.tabSwitches, nil
}
