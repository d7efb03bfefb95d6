// Package common — errors.go определяет общие ошибки,
// которые используются во всех модулях бота.
// Ошибки целостности данных фатальны и никогда не показываются пользователю;
// пользовательские отказы карма-модуль выражает через Outcome, не через ошибки.
package common

import "errors"

// Ошибки целостности кармы (фатальные)
var (
	// ErrDuplicateOrigin — событие-источник уже породило запись голоса.
	// Нарушение уникальности given_from — это баг вызывающего кода или
	// повреждение данных, а не пользовательская ситуация.
	ErrDuplicateOrigin = errors.New("событие уже использовано для голосования")
	// ErrInvalidValue — значение голоса не равно +1 или -1
	ErrInvalidValue = errors.New("значение голоса должно быть +1 или -1")
)

// Ошибки админки
var (
	// ErrNotAdmin — у пользователя нет активной админ-сессии
	ErrNotAdmin = errors.New("нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
)
