package model

import (
	"errors"
	"fmt"
)

var (
	ErrBoardNotFound  = errors.New("board not found")
	ErrBoxNotFound    = errors.New("box not found")
	ErrDuplicateBoard = errors.New("board already exists")
	ErrInvalidField   = errors.New("invalid field")
	ErrNotBound       = errors.New("connection not bound to board")
	ErrBadRequest     = errors.New("bad request")
)

// Wire codes carried in the "code" field of an error event.
const (
	CodeBoardNotFound  = "BoardNotFound"
	CodeBoxNotFound    = "BoxNotFound"
	CodeDuplicateBoard = "DuplicateBoard"
	CodeInvalidField   = "InvalidField"
	CodeNotBound       = "NotBound"
	CodeBadRequest     = "BadRequest"
)

var codes = []struct {
	code string
	err  error
}{
	{CodeBoardNotFound, ErrBoardNotFound},
	{CodeBoxNotFound, ErrBoxNotFound},
	{CodeDuplicateBoard, ErrDuplicateBoard},
	{CodeInvalidField, ErrInvalidField},
	{CodeNotBound, ErrNotBound},
	{CodeBadRequest, ErrBadRequest},
}

// ErrorCode maps err to its wire code. Unknown errors map to BadRequest.
func ErrorCode(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeBadRequest
}

// ErrorFromCode rebuilds an error received over the wire so callers can
// match it with errors.Is.
func ErrorFromCode(code, msg string) error {
	for _, c := range codes {
		if c.code == code {
			if msg == "" || msg == c.err.Error() {
				return c.err
			}
			return &remoteError{sentinel: c.err, msg: msg}
		}
	}
	return fmt.Errorf("%w: %s", ErrBadRequest, msg)
}

type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }

func invalidField(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidField, fmt.Sprintf(format, args...))
}
