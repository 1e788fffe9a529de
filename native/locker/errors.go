package locker

import "errors"

var (
	// ErrInvalidAmount is returned when a native-currency payment attached to a
	// call does not match the amount the operation requires.
	ErrInvalidAmount = errors.New("locker: invalid_amount")
	// ErrInvalidLockedStage is returned when release is attempted outside the
	// Locked stage.
	ErrInvalidLockedStage = errors.New("locker: invalid_locked_stage")
	// ErrInvalidUnlockedStage is returned when burn is attempted before the
	// locker reaches the Unlocked stage.
	ErrInvalidUnlockedStage = errors.New("locker: invalid_unlocked_stage")
	// ErrInvalidStage is returned when an operation is attempted in a stage
	// that does not permit it (deposits after release, withdrawals after lock).
	ErrInvalidStage = errors.New("locker: invalid stage for operation")

	ErrUnauthorized        = errors.New("locker: unauthorized caller")
	ErrConditionOutOfRange = errors.New("locker: condition index out of range")
	ErrTimeLocked          = errors.New("locker: unlock time not reached")
	ErrEntryMismatch       = errors.New("locker: custody entry mismatch")
	ErrPositionBurned      = errors.New("locker: position burned")
	ErrInvalidPayload      = errors.New("locker: invalid payload")
	ErrInvalidCondition    = errors.New("locker: invalid condition")
	ErrInvalidBundle       = errors.New("locker: invalid asset bundle")

	// ErrPaused is returned by CreateLocker while the factory is paused.
	ErrPaused   = errors.New("factory: paused")
	ErrNotAdmin = errors.New("factory: admin required")

	errNilRegistry = errors.New("factory: position registry not configured")
	errNilAdapter  = errors.New("factory: asset adapter not configured")
	errNilBank     = errors.New("factory: reward bank not configured")
)
