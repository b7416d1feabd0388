/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrValidation        ErrorCode = "VALIDATION_ERROR"
	ErrAuthorization     ErrorCode = "AUTHORIZATION_ERROR"
	ErrStateConflict     ErrorCode = "STATE_CONFLICT"
	ErrLedgerUnavailable ErrorCode = "LEDGER_UNAVAILABLE"
	ErrTransactionFailed ErrorCode = "TRANSACTION_FAILED"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrInternalServer    ErrorCode = "INTERNAL_SERVER_ERROR"
)

// Reason narrows a code down to the exact rule that was violated.
type Reason string

const (
	ReasonInvalidMilestoneSum        Reason = "INVALID_MILESTONE_SUM"
	ReasonMissingMultisig            Reason = "MISSING_MULTISIG"
	ReasonProjectNotOnLedger         Reason = "PROJECT_NOT_ON_LEDGER"
	ReasonAlreadySubmitted           Reason = "ALREADY_SUBMITTED"
	ReasonNotSubmitted               Reason = "NOT_SUBMITTED"
	ReasonNotApproved                Reason = "NOT_APPROVED"
	ReasonDisputeWindowActive        Reason = "DISPUTE_WINDOW_ACTIVE"
	ReasonAlreadyReleased            Reason = "ALREADY_RELEASED"
	ReasonMilestoneDisputed          Reason = "MILESTONE_DISPUTED"
	ReasonTransactionAlreadyExecuted Reason = "TRANSACTION_ALREADY_EXECUTED"
	ReasonTransactionNotOnLedger     Reason = "TRANSACTION_NOT_ON_LEDGER"
	ReasonNotExecutable              Reason = "NOT_EXECUTABLE"
	ReasonNotOwner                   Reason = "NOT_OWNER"
	ReasonNotProjectOwner            Reason = "NOT_PROJECT_OWNER"
	ReasonApproverNotAllowed         Reason = "APPROVER_NOT_ALLOWED"
	ReasonTransactionNotFound        Reason = "TRANSACTION_NOT_FOUND"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Reason  Reason      `json:"reason,omitempty"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s(%s): %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// New builds an error carrying both a code and a reason.
func New(code ErrorCode, reason Reason, message string, details interface{}) APIError {
	e := NewAPIError(code, message, details)
	e.Reason = reason
	return e
}

// DisputeWindow is attached to DISPUTE_WINDOW_ACTIVE errors so callers can tell
// the user how long to wait.
type DisputeWindow struct {
	DaysRemaining int64  `json:"days_remaining"`
	EndsAt        string `json:"ends_at"`
}

// As extracts an APIError from err's chain.
func As(err error) (APIError, bool) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return APIError{}, false
}

// CodeOf returns the code of err, or ErrInternalServer when err is not an APIError.
func CodeOf(err error) ErrorCode {
	if apiErr, ok := As(err); ok {
		return apiErr.Code
	}
	return ErrInternalServer
}

// Is reports whether err carries the given reason.
func Is(err error, reason Reason) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Reason == reason
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	return CodeOf(err) == ErrLedgerUnavailable
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := As(err); ok {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict, ErrStateConflict:
			return http.StatusConflict
		case ErrValidation:
			return http.StatusBadRequest
		case ErrAuthorization:
			return http.StatusForbidden
		case ErrLedgerUnavailable:
			return http.StatusServiceUnavailable
		case ErrTransactionFailed:
			return http.StatusUnprocessableEntity
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
