// Package apperr описывает таксономию ошибок приложения.
//
// Каждая ошибка бизнес-уровня несёт Kind, по которому HTTP-слой выбирает
// статус ответа, и сообщение, безопасное для передачи клиенту.
package apperr

import "errors"

// Kind категория ошибки.
type Kind string

const (
	KindInvalidArgument     Kind = "INVALID_ARGUMENT"
	KindConflict            Kind = "CONFLICT"
	KindNotFound            Kind = "NOT_FOUND"
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	KindUnauthenticated     Kind = "UNAUTHENTICATED"
	KindForbidden           Kind = "FORBIDDEN"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindInternal            Kind = "INTERNAL"
)

// Error ошибка с категорией и клиентским сообщением.
type Error struct {
	Kind    Kind
	Message string
	Err     error // исходная причина, в ответ клиенту не попадает
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New создаёт ошибку заданной категории.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap оборачивает причину err в ошибку заданной категории.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func InvalidArgument(msg string) *Error { return New(KindInvalidArgument, msg) }
func Conflict(msg string) *Error        { return New(KindConflict, msg) }
func NotFound(msg string) *Error        { return New(KindNotFound, msg) }
func Unauthenticated(msg string) *Error { return New(KindUnauthenticated, msg) }
func Forbidden(msg string) *Error       { return New(KindForbidden, msg) }

// Upstream оборачивает сбой внешнего провайдера (платежи, почта).
func Upstream(msg string, err error) *Error {
	return Wrap(KindUpstreamUnavailable, msg, err)
}

// KindOf возвращает категорию ближайшей *Error в цепочке err.
// Ошибки без категории считаются внутренними.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf возвращает клиентское сообщение. Для внутренних ошибок
// детали скрываются.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal error"
}

// Is сообщает, относится ли err к категории kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
