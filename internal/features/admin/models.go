// Package admin — панель администратора для ремонтных операций кармы.
// models.go описывает сессии и попытки входа.
package admin

import "time"

// Session — активная админ-сессия (после успешного /login).
type Session struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	SessionToken    string    `db:"session_token"`
	AuthenticatedAt time.Time `db:"authenticated_at"`
	ExpiresAt       time.Time `db:"expires_at"`
}

// LoginAttempt — попытка входа (для защиты от перебора).
type LoginAttempt struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
}
