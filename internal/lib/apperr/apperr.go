// Package apperr описывает виды ошибок бизнес-логики и тип Error,
// который связывает вид ошибки с сообщением для пользователя.
//
// Сервисы возвращают *Error, HTTP-слой по виду ошибки решает,
// какое уведомление показать и куда перенаправить запрос.
package apperr

import (
	"errors"
	"fmt"
)

// Виды ошибок. Проверяются через errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrSuspended         = errors.New("account suspended")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrPastDate          = errors.New("date is in the past")
	ErrHorizonExceeded   = errors.New("date is beyond the horizon")
	ErrStorage           = errors.New("storage error")
)

// Error: ошибка с видом и текстом, который можно показать пользователю.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is позволяет сравнивать Error с видом ошибки через errors.Is.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New создаёт ошибку заданного вида с сообщением для пользователя.
func New(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap оборачивает причину err в ошибку заданного вида.
func Wrap(kind error, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Validation: короткая форма для ErrValidation.
func Validation(msg string) *Error {
	return New(ErrValidation, msg)
}

// Storage оборачивает сбой хранилища. Сообщения для пользователя у такой
// ошибки нет, обработчик показывает своё.
func Storage(err error) *Error {
	return Wrap(ErrStorage, "", err)
}

// Message возвращает сообщение для пользователя, если err: *Error,
// иначе fallback.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return fallback
}
