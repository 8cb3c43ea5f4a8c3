package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no live room has the given code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomNotJoinable is returned when the room has left the lobby.
	ErrRoomNotJoinable = errors.New("room is not in the lobby")
	// ErrRoomNotPlaying is returned for gameplay calls outside the playing state.
	ErrRoomNotPlaying = errors.New("room is not playing")
	// ErrNotAuthorized is returned when a non-host tries to drive the room.
	ErrNotAuthorized = errors.New("only the host can do that")
	// ErrEmptyQuiz is returned when starting a quiz without questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrStaleQuestionIndex is returned for answers to a question other than the current one.
	ErrStaleQuestionIndex = errors.New("answer is not for the current question")
	// ErrDuplicateAnswer is returned when the participant already answered this question.
	ErrDuplicateAnswer = errors.New("question already answered")
	// ErrUnknownParticipant is returned when the caller has no player record in the room.
	ErrUnknownParticipant = errors.New("participant not found in room")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when a recorded session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCodeSpaceExhausted is returned when no free room code could be allocated.
	ErrCodeSpaceExhausted = errors.New("could not allocate a room code")
)
