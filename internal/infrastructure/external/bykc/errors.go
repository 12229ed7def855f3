package bykc

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one member of the closed error taxonomy surfaced by the
// enrollment service. Retry-vs-propagate decisions are a pure function of the
// kind, never of message contents.
type Kind int

const (
	// KindUnknown covers unclassified transport failures and any nonzero api
	// status whose message matches no known business condition. Retried up to
	// the attempt budget, then surfaced verbatim.
	KindUnknown Kind = iota

	// KindLoginError means the SSO handshake failed or credentials were
	// rejected. Fatal for the current operation.
	KindLoginError

	// KindSessionExpired means the token was rejected. Transparent to callers
	// when soft login recovers it.
	KindSessionExpired

	// KindAlreadyChosen: the seat is already held; choosing is idempotent.
	KindAlreadyChosen

	// KindTooEarlyToChoose: the selection window has not opened yet.
	KindTooEarlyToChoose

	// KindFailedToChoose: the course is not selectable at all.
	KindFailedToChoose

	// KindCourseIsFull: every seat is taken.
	KindCourseIsFull

	// KindFailedToDelChosen: withdrawal rejected (not held, or past deadline).
	KindFailedToDelChosen
)

// String returns the kind's name for logs and operator notifications.
func (k Kind) String() string {
	switch k {
	case KindLoginError:
		return "login_error"
	case KindSessionExpired:
		return "session_expired"
	case KindAlreadyChosen:
		return "already_chosen"
	case KindTooEarlyToChoose:
		return "too_early_to_choose"
	case KindFailedToChoose:
		return "failed_to_choose"
	case KindCourseIsFull:
		return "course_is_full"
	case KindFailedToDelChosen:
		return "failed_to_del_chosen"
	default:
		return "unknown"
	}
}

// APIError is the single error type produced by the bykc client. Status holds
// the raw api status code when the remote envelope carried one.
type APIError struct {
	Kind    Kind
	Status  string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("bykc: %s (status %s): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("bykc: %s: %s", e.Kind, e.Message)
}

// Business reports whether the error describes a durable business outcome.
// Business outcomes reflect real-world state, not faults, and are never
// retried.
func (e *APIError) Business() bool {
	switch e.Kind {
	case KindAlreadyChosen, KindTooEarlyToChoose, KindFailedToChoose,
		KindCourseIsFull, KindFailedToDelChosen:
		return true
	}
	return false
}

// Transient reports whether the error is worth retrying.
func (e *APIError) Transient() bool {
	return e.Kind == KindUnknown || e.Kind == KindSessionExpired
}

// newError builds an APIError without a raw status code.
func newError(kind Kind, format string, args ...any) *APIError {
	return &APIError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrorKind extracts the taxonomy kind from an error chain. Non-client errors
// report KindUnknown, false.
func ErrorKind(err error) (Kind, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return KindUnknown, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := ErrorKind(err)
	return ok && k == kind
}

// Convenience predicates used by the enrollment state machine.

func IsSessionExpired(err error) bool  { return IsKind(err, KindSessionExpired) }
func IsLoginError(err error) bool      { return IsKind(err, KindLoginError) }
func IsAlreadyChosen(err error) bool   { return IsKind(err, KindAlreadyChosen) }
func IsTooEarlyToChoose(err error) bool { return IsKind(err, KindTooEarlyToChoose) }
func IsCourseFull(err error) bool      { return IsKind(err, KindCourseIsFull) }

// IsBusiness reports whether err is a durable business outcome.
func IsBusiness(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Business()
}

// ─────────────────────────────────────────────────────────────────────────────
// Classification
// ─────────────────────────────────────────────────────────────────────────────

// statusSessionExpired is the sentinel api status the service returns for a
// rejected token.
const statusSessionExpired = "98005399"

// businessMessages maps known substrings of the service's human-readable
// error messages to business-error kinds. The matching is fragile by nature;
// keep the whole table here so call sites never inspect messages themselves.
var businessMessages = []struct {
	substr string
	kind   Kind
}{
	{"已报名过该课程，请不要重复报名", KindAlreadyChosen},
	{"该课程还未开始选课，请耐心等待", KindTooEarlyToChoose},
	{"选课失败，该课程不可选择", KindFailedToChoose},
	{"报名失败，该课程人数已满！", KindCourseIsFull},
	{"退选失败，未找到退选课程或已超过退选时间", KindFailedToDelChosen},
}

// classifyStatus turns a decoded response envelope's nonzero status and
// message into a member of the closed taxonomy.
func classifyStatus(status, message string) *APIError {
	if status == statusSessionExpired {
		return &APIError{Kind: KindSessionExpired, Status: status, Message: "login expired"}
	}
	for _, entry := range businessMessages {
		if strings.Contains(message, entry.substr) {
			return &APIError{Kind: entry.kind, Status: status, Message: entry.substr}
		}
	}
	return &APIError{
		Kind:    KindUnknown,
		Status:  status,
		Message: fmt.Sprintf("server returned a non-zero api status code: %s: %s", status, message),
	}
}
