// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков.
//
// Успешный ответ: {"status":"OK","data":...}. Ошибка:
// {"status":"Error","error":{"code":"<KIND>","message":"..."}}. Код ошибки и
// HTTP-статус выбираются по категории apperr.
package response

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
)

const (
	// StatusOK значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// Response описывает успешный JSON‑ответ сервера.
type Response struct {
	Status string `json:"status" example:"OK"`
	Data   any    `json:"data,omitempty"`
}

// ErrorBody описывает ошибку в ответе.
type ErrorBody struct {
	Code    apperr.Kind `json:"code" example:"INVALID_ARGUMENT" swaggertype:"string"`
	Message string      `json:"message" example:"invalid request body"`
}

// ErrorResponse ответ с ошибкой. Используется и в аннотациях @Failure.
type ErrorResponse struct {
	Status string    `json:"status" example:"Error"`
	Error  ErrorBody `json:"error"`
}

// OK возвращает успешный Response без данных.
func OK() Response {
	return Response{Status: StatusOK}
}

// OKWithData возвращает успешный Response с переданными данными.
func OKWithData(data any) Response {
	return Response{Status: StatusOK, Data: data}
}

// Error возвращает ErrorResponse заданной категории.
func Error(kind apperr.Kind, msg string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  ErrorBody{Code: kind, Message: msg},
	}
}

// FromError строит ErrorResponse по ошибке. Детали внутренних ошибок скрываются.
func FromError(err error) ErrorResponse {
	return Error(apperr.KindOf(err), apperr.MessageOf(err))
}

// HTTPStatus возвращает HTTP-статус для категории ошибки.
func HTTPStatus(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// RenderError пишет ответ с ошибкой и статусом по её категории.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, HTTPStatus(apperr.KindOf(err)))
	render.JSON(w, r, FromError(err))
}

// RenderKind пишет ответ с ошибкой заданной категории.
func RenderKind(w http.ResponseWriter, r *http.Request, kind apperr.Kind, msg string) {
	render.Status(r, HTTPStatus(kind))
	render.JSON(w, r, Error(kind, msg))
}

// ValidationError формирует ErrorResponse на основе ошибок валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(errs validator.ValidationErrors) ErrorResponse {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be a valid email", err.Field()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at least %s", err.Field(), err.Param()))
		case "max":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at most %s", err.Field(), err.Param()))
		case "gte", "gt":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be %s %s", err.Field(), err.ActualTag(), err.Param()))
		case "lte", "lt":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be %s %s", err.Field(), err.ActualTag(), err.Param()))
		case "len":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be %s characters long", err.Field(), err.Param()))
		case "dive":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s has an invalid element", err.Field()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}
	return Error(apperr.KindInvalidArgument, strings.Join(errsMsgs, ", "))
}

// RenderValidation пишет ответ 400 с ошибками валидации. Ошибки другого
// типа (например, неверный тип аргумента) отдаются общим сообщением.
func RenderValidation(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusBadRequest)
	if errs, ok := err.(validator.ValidationErrors); ok {
		render.JSON(w, r, ValidationError(errs))
		return
	}
	render.JSON(w, r, Error(apperr.KindInvalidArgument, "invalid request"))
}
