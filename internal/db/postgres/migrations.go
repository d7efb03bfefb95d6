// Package postgres — migrations.go содержит SQL всех миграций.
// Миграции применяются по порядку номеров; применённые пропускаются
// по записи в schema_migrations.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// Журнал голосов и агрегаты кармы.
//
// В составном первичном ключе NULL невозможен, поэтому скрытый получатель
// хранится как пустая строка; это деталь схемы, код репозитория наружу
// отдаёт nil. given_from уникален: одно событие — не более одного голоса.
const migration001Karma = `
CREATE TABLE IF NOT EXISTS karma (
    given_to VARCHAR(255) NOT NULL,
    given_by VARCHAR(255) NOT NULL,
    given_in VARCHAR(255) NOT NULL,
    given_for VARCHAR(255) NOT NULL,
    given_from VARCHAR(255) NOT NULL UNIQUE,
    given_at BIGINT NOT NULL,
    value SMALLINT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (given_to, given_by, given_in, given_for)
);
CREATE INDEX IF NOT EXISTS idx_karma_given_by ON karma(given_by);
CREATE INDEX IF NOT EXISTS idx_karma_event ON karma(given_in, given_for);

CREATE TABLE IF NOT EXISTS karma_cache (
    user_id VARCHAR(255) PRIMARY KEY,
    total INTEGER NOT NULL DEFAULT 0,
    positive INTEGER NOT NULL DEFAULT 0,
    negative INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_karma_cache_total ON karma_cache(total DESC, user_id ASC);
`

// Справочник участников для отображения имён и доступа в личку.
const migration002Members = `
CREATE TABLE IF NOT EXISTS members (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT UNIQUE NOT NULL,
    username VARCHAR(255) NOT NULL DEFAULT '',
    first_name VARCHAR(255) NOT NULL DEFAULT '',
    last_name VARCHAR(255) NOT NULL DEFAULT '',
    joined_at TIMESTAMP DEFAULT NOW(),
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_members_user_id ON members(user_id);
`

// Сессии и попытки входа администратора.
const migration003Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(255) UNIQUE,
    authenticated_at TIMESTAMP DEFAULT NOW(),
    expires_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user_id ON admin_sessions(user_id);

CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT,
    attempt_time TIMESTAMP DEFAULT NOW(),
    success BOOLEAN DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_admin_login_attempts_user ON admin_login_attempts(user_id, attempt_time);
`

// RunMigrations применяет все миграции по порядку.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := EnsureMigrationTable(ctx, pool); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Karma},
		{2, migration002Members},
		{3, migration003Admin},
	}

	for _, m := range migrations {
		if err := ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return err
		}
	}

	log.Info("Миграции применены")
	return nil
}
