/*
Copyright © 2026 iknowur contributors
*/

package main

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code. The set is closed: every failure a
// game operation can report is one of these, detected before any mutation.
type Code string

const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeForbidden            Code = "FORBIDDEN"
	CodeStageLocked          Code = "STAGE_LOCKED"
	CodeSubmissionClosed     Code = "SUBMISSION_CLOSED"
	CodeNotActiveYet         Code = "NOT_ACTIVE_YET"
	CodeAlreadySubmitted     Code = "ALREADY_SUBMITTED"
	CodeInvalidBatchSize     Code = "INVALID_BATCH_SIZE"
	CodeInvalidTarget        Code = "INVALID_TARGET"
	CodeSelfTargetNotAllowed Code = "SELF_TARGET_NOT_ALLOWED"
	CodeInvalidCommitFormat  Code = "INVALID_COMMIT_FORMAT"
	CodeNotAuthor            Code = "NOT_AUTHOR"
	CodeAlreadyUsed          Code = "ALREADY_USED"
	CodeCommitMismatch       Code = "COMMIT_MISMATCH"
	CodeAlreadyFinalized     Code = "ALREADY_FINALIZED"
	CodeClaimantCannotVote   Code = "CLAIMANT_CANNOT_VOTE"
	CodeInvalidVote          Code = "INVALID_VOTE"
	CodeDuplicateVote        Code = "DUPLICATE_VOTE"
)

// GameError carries a taxonomy code plus a user-facing message. All game
// errors are request-local validation failures; none are retryable.
type GameError struct {
	Code    Code
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

func gameErr(code Code, message string) *GameError {
	return &GameError{Code: code, Message: message}
}

// ErrorCode extracts the taxonomy code from an error; ok is false for
// errors outside the taxonomy.
func ErrorCode(err error) (Code, bool) {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Code, true
	}
	return "", false
}

// httpStatus maps taxonomy codes onto response statuses, mirroring the
// statuses the API has always returned.
func httpStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden, CodeNotAuthor:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
