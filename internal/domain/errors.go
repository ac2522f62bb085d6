package domain

import "fmt"

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: msg, Status: 403}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Status: 500, Cause: cause}
}

// Season-pass error constructors. Codes are part of the client contract;
// clients branch on them independent of the HTTP status.

// ErrNoActiveSeason means no season config covers the given date.
func ErrNoActiveSeason() *AppError {
	return &AppError{Code: "NO_ACTIVE_SEASON", Message: "no active season for today", Status: 404}
}

// ErrSeasonConflict means more than one active season covers the same date.
// This is operator data corruption and is never resolved by picking one.
func ErrSeasonConflict() *AppError {
	return &AppError{Code: "NO_ACTIVE_SEASON_CONFLICT", Message: "overlapping active seasons; operator fix required", Status: 500}
}

func ErrAlreadyStampedToday() *AppError {
	return &AppError{Code: "ALREADY_STAMPED_TODAY", Message: "daily stamp already recorded for today", Status: 400}
}

func ErrNoProgress() *AppError {
	return &AppError{Code: "NO_PROGRESS", Message: "no season pass progress for user", Status: 400}
}

func ErrLevelNotReached(level int) *AppError {
	return &AppError{Code: "LEVEL_NOT_REACHED", Message: fmt.Sprintf("level %d not reached", level), Status: 400}
}

func ErrAlreadyClaimed(level int) *AppError {
	return &AppError{Code: "ALREADY_CLAIMED", Message: fmt.Sprintf("reward for level %d already claimed", level), Status: 400}
}

// Wallet error constructors.

func ErrInsufficientBalance() *AppError {
	return &AppError{Code: "INSUFFICIENT_BALANCE", Message: "insufficient token balance", Status: 400}
}

// Survey error constructors.

func ErrResponseCompleted() *AppError {
	return &AppError{Code: "RESPONSE_COMPLETED", Message: "survey response already completed", Status: 400}
}

func ErrRequiredAnswersMissing(questionIDs []int64) *AppError {
	return &AppError{
		Code:    "REQUIRED_ANSWERS_MISSING",
		Message: fmt.Sprintf("required questions unanswered: %v", questionIDs),
		Status:  400,
	}
}
