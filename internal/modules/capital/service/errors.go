package service

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotConnected: запрос, требующий токенов, без открытой сессии.
	ErrNotConnected = errors.New("capital: session is not connected")
	// ErrAlreadyConnected: повторный Open без Close.
	ErrAlreadyConnected = errors.New("capital: session is already connected")
	// ErrMaxPages: пагинация упёрлась в app.max_pages.
	ErrMaxPages = errors.New("capital: max pages exceeded")
	// ErrCursorStalled: полная страница не сдвинула курсор вперёд.
	ErrCursorStalled = errors.New("capital: pagination cursor did not advance")
)

// ArgumentError: невалидный аргумент, сеть не трогали.
type ArgumentError struct {
	Name   string
	Value  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("capital: invalid %s %q: %s", e.Name, e.Value, e.Reason)
}

// AuthenticationError: логин отклонён (StatusCode > 0) или не дошёл до сервера.
type AuthenticationError struct {
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("capital: authentication rejected with http %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("capital: authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// TransportError: запрос не дошёл или ответ не дочитан.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("capital: %s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError: не-2xx статус или тело, которое не удалось разобрать.
type APIError struct {
	Op         string
	StatusCode int
	// ErrorCode: поле errorCode из тела ошибки capital.com, если оно было
	ErrorCode string
	Body      []byte
	Err       error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("capital: %s: http %d: bad response: %v", e.Op, e.StatusCode, e.Err)
	case e.ErrorCode != "":
		return fmt.Sprintf("capital: %s: http %d: %s", e.Op, e.StatusCode, e.ErrorCode)
	default:
		return fmt.Sprintf("capital: %s: http %d", e.Op, e.StatusCode)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// PaginationLimitError: защитный предел по страницам/времени или залипший курсор.
type PaginationLimitError struct {
	Pages  int
	Cursor string
	Err    error
}

func (e *PaginationLimitError) Error() string {
	return fmt.Sprintf("capital: pagination stopped after %d pages at cursor %s: %v", e.Pages, e.Cursor, e.Err)
}

func (e *PaginationLimitError) Unwrap() error { return e.Err }
