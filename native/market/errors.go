package market

import "errors"

// Error kinds surfaced by the marketplace. Handlers wrap them with the
// offending entity so callers can classify with errors.Is.
var (
	ErrUnauthorized     = errors.New("market: unauthorized")
	ErrInvalidState     = errors.New("market: invalid listing state")
	ErrNotFound         = errors.New("market: not found")
	ErrDuplicate        = errors.New("market: identifier already exists")
	ErrInvalidBalance   = errors.New("market: invalid balance")
	ErrNotAllowListed   = errors.New("market: asset not in allow-list")
	ErrExpired          = errors.New("market: listing expired")
	ErrCooldown         = errors.New("market: fee rotation not yet permitted")
	ErrFinalizeTooShort = errors.New("market: finalize window too short")
	ErrAskMismatch      = errors.New("market: bucket does not match ask")
	ErrChannelMismatch  = errors.New("market: command not accepted on this channel")
	ErrInvalidMessage   = errors.New("market: invalid message")

	errNilState = errors.New("market engine: state not configured")
)

// ErrorKind classifies err into one of the marketplace error kinds. It returns
// "internal" for anything unrecognised.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "authorization"
	case errors.Is(err, ErrInvalidState):
		return "state"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrInvalidBalance):
		return "validation"
	case errors.Is(err, ErrNotAllowListed):
		return "allow_list"
	case errors.Is(err, ErrExpired), errors.Is(err, ErrCooldown), errors.Is(err, ErrFinalizeTooShort):
		return "temporal"
	case errors.Is(err, ErrAskMismatch):
		return "swap_mismatch"
	case errors.Is(err, ErrChannelMismatch):
		return "channel_mismatch"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	default:
		return "internal"
	}
}
