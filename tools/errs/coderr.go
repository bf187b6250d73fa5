package errs

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CodeError is the error shape sent back to clients over the wire.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == e.Code
}

// Wrap annotates err with msg, keeping the cause chain.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

func New(msg string) error { return errors.New(msg) }

// Predefined errors. 11xx auth/handshake, 12xx membership, 13xx rooms.
var (
	ErrTokenInvalid     = NewCodeError(1101, "token invalid or expired")
	ErrUserRequired     = NewCodeError(1102, "user identity required")
	ErrNotRoomMember    = NewCodeError(1201, "not a member of the target room")
	ErrGroupNotFound    = NewCodeError(1202, "group not found or inactive")
	ErrOrgNotFound      = NewCodeError(1203, "organization not found")
	ErrTaskNotFound     = NewCodeError(1204, "task not found")
	ErrUnknownRoom      = NewCodeError(1301, "unknown room key")
	ErrUnknownFrameType = NewCodeError(1302, "unknown frame type")
	ErrUnknownEventType = NewCodeError(1303, "unknown event type")
	ErrMessageNotFound  = NewCodeError(1401, "message not found")
	ErrNotMessageOwner  = NewCodeError(1402, "not the message sender")
)
