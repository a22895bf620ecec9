package relay

import "errors"

// Connection errors.
var (
	ErrConnectionFailed = errors.New("origin connection failed")
	ErrHandshakeTimeout = errors.New("origin handshake timed out")
	ErrLinkClosed       = errors.New("origin link closed")
)

// Login rejections. Their messages are shown to the viewer verbatim.
var (
	ErrAlreadyLoggedIn = errors.New("already logged in, try reloading")
	ErrOriginNotFound  = errors.New("media server not found, maybe it went offline")
	ErrNameInvalid     = errors.New("invalid username")
	ErrNameBlank       = errorWrap{msg: "username cannot be blank", base: ErrNameInvalid}
	ErrNameTooLong     = errorWrap{msg: "username cannot be longer than 32 characters", base: ErrNameInvalid}
	ErrBadPassword     = errors.New("incorrect password")
	ErrNameInUse       = errors.New("username taken")
	ErrJoinRejected    = errors.New("the media server declined the join request")
	ErrLoginMalformed  = errors.New("malformed login request")
)

// errorWrap is a fixed-message error that also matches base with errors.Is.
type errorWrap struct {
	msg  string
	base error
}

func (e errorWrap) Error() string { return e.msg }

func (e errorWrap) Unwrap() error { return e.base }

// loginResult labels a login outcome for metrics.
func loginResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrAlreadyLoggedIn):
		return "already_logged_in"
	case errors.Is(err, ErrOriginNotFound):
		return "not_found"
	case errors.Is(err, ErrNameInvalid):
		return "name_invalid"
	case errors.Is(err, ErrBadPassword):
		return "bad_password"
	case errors.Is(err, ErrNameInUse):
		return "name_in_use"
	case errors.Is(err, ErrJoinRejected):
		return "rejected"
	}
	return "error"
}
