package services

import "errors"

var (
	ErrNotFound = errors.New("requested resource not found")

	ErrValidationFailed      = errors.New("validation failed")
	ErrNotEnoughParticipants = errors.New("not enough participants to start (minimum 2)")
	ErrRegistrationNotOpen   = errors.New("tournament registration is not open")
	ErrTournamentFull        = errors.New("tournament registration is full")
	ErrAlreadyRegistered     = errors.New("player is already registered for this tournament")
	ErrReservedPlayerID      = errors.New("player id uses a reserved prefix")
	ErrUnknownTemplate       = errors.New("tournament does not match a known template")
	ErrInvalidTemplate       = errors.New("invalid tournament template")
	ErrBotIdentityExhausted  = errors.New("could not generate a unique bot identity")
	ErrFinalNotSingleMatch   = errors.New("final round must consist of exactly one match")
	ErrUnexpectedWinner      = errors.New("game winner is not a player of the bracket match")

	ErrTournamentNotFound = errors.New("tournament not found")

	ErrAuthInvalidCredentials = errors.New("invalid credentials")
	ErrAuthNotConfigured      = errors.New("admin login is not configured")

	ErrTickPanicked = errors.New("orchestrator tick panicked")
)
