// Package storage содержит общие ошибки слоя хранения.
package storage

import "errors"

var (
	// ErrNotFound запись не найдена.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate нарушен уникальный индекс.
	ErrDuplicate = errors.New("duplicate record")
	// ErrInvalidID идентификатор имеет неверный формат.
	ErrInvalidID = errors.New("invalid id")
)
