package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/lms-oauth-gateway/oauth2"
	"github.com/pkg/errors"
)

// Kind is the closed set of failures the authorization service reports.
type Kind int

const (
	Internal Kind = iota
	MissingParameter
	ResponseType
	LoginFailed
	TokenInvalid
	ClientDisabledForGrant
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case MissingParameter:
		return "missing_parameter"
	case ResponseType:
		return "response_type"
	case LoginFailed:
		return "login_failed"
	case TokenInvalid:
		return "token_invalid"
	case ClientDisabledForGrant:
		return "client_disabled_for_grant"
	case Unavailable:
		return "unavailable"
	case Internal:
		return "internal"
	}
	return "internal"
}

// HTTPStatus is the response status a failure of this kind is reported with.
func (k Kind) HTTPStatus() int {
	switch k {
	case MissingParameter:
		return http.StatusUnprocessableEntity
	case ResponseType:
		return http.StatusBadRequest
	case LoginFailed, TokenInvalid:
		return http.StatusUnauthorized
	case ClientDisabledForGrant:
		return http.StatusForbidden
	case Unavailable:
		return http.StatusServiceUnavailable
	case Internal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// Error is a classified failure. Msg is safe to show to API clients; Cause is for logs only.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

func missingParameter(name string) *Error {
	return newError(MissingParameter, nil, "mandatory parameter <%s> is missing", name)
}

func loginFailed(cause error) *Error {
	return newError(LoginFailed, cause, "login failed")
}

func tokenInvalid(cause error, what string) *Error {
	return newError(TokenInvalid, cause, "%s is invalid or has expired", what)
}

func clientDisabled(cause error, grant oauth2.GrantType) *Error {
	return newError(ClientDisabledForGrant, cause, "client is not allowed to use grant %s", grant)
}

// KindOf classifies err. Errors that are not an *Error are infrastructure failures: Unavailable when
// a deadline was hit, Internal otherwise.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Unavailable
	}
	return Internal
}

// PublicMessage is the message an API client may see for err.
func PublicMessage(err error) string {
	var authErr *Error
	if errors.As(err, &authErr) && authErr.Kind != Internal && authErr.Kind != Unavailable {
		return authErr.Msg
	}
	if KindOf(err) == Unavailable {
		return "service temporarily unavailable"
	}
	return "internal server error"
}

// classify turns any error into an *Error, keeping the original as the cause.
func classify(err error) *Error {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}
	kind := KindOf(err)
	return &Error{Kind: kind, Msg: PublicMessage(err), Cause: err}
}
