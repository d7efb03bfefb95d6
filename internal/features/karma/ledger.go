// Package karma — ledger.go выполняет все мутации журнала голосов.
// Каждая мутация — одна транзакция: запись в karma и инкрементальное
// обновление karma_cache фиксируются вместе или не фиксируются вовсе.
package karma

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/karma-bot/internal/common"
)

// Repository работает с таблицами karma и karma_cache.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий кармы.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// В составном первичном ключе Postgres не бывает NULL, поэтому скрытый
// получатель хранится как пустая строка. Наружу пустая строка не выходит:
// эти две функции — единственное место преобразования.
func recipientToSQL(recipient *string) string {
	if recipient == nil {
		return ""
	}
	return *recipient
}

func recipientFromSQL(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ApplyVote применяет голос к журналу.
//
// Поведение:
//   - записи нет → вставка, Created;
//   - запись есть с тем же знаком → ничего не меняется, Unchanged;
//   - запись есть с противоположным знаком → знак, метка времени и
//     событие-источник обновляются на месте, Updated.
//
// Агрегат получателя меняется в той же транзакции.
func (r *Repository) ApplyVote(ctx context.Context, recipient *string, voter, room, target, origin string, value int, content string) (Outcome, error) {
	if value != 1 && value != -1 {
		return OutcomeNotFound, common.ErrInvalidValue
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	to := recipientToSQL(recipient)
	now := time.Now().UnixMilli()

	// FOR UPDATE сериализует конкурирующие голоса по одному ключу
	var existing int
	err = tx.QueryRow(ctx, `
		SELECT value FROM karma
		WHERE given_to = $1 AND given_by = $2 AND given_in = $3 AND given_for = $4
		FOR UPDATE
	`, to, voter, room, target).Scan(&existing)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
			INSERT INTO karma (given_to, given_by, given_in, given_for, given_from, given_at, value, content)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, to, voter, room, target, origin, now, value, content)
		if err != nil {
			return OutcomeNotFound, wrapKarmaError(err)
		}
		if err := upsertCacheDelta(ctx, tx, to, value, boolToInt(value > 0), boolToInt(value < 0)); err != nil {
			return OutcomeNotFound, err
		}
		if err := tx.Commit(ctx); err != nil {
			return OutcomeNotFound, fmt.Errorf("ошибка фиксации транзакции: %w", err)
		}
		return OutcomeCreated, nil

	case err != nil:
		return OutcomeNotFound, fmt.Errorf("ошибка чтения голоса: %w", err)

	case existing == value:
		// Повтор того же голоса — не ошибка и не изменение
		return OutcomeUnchanged, nil

	default:
		// Смена знака. Новый голос теперь принадлежит новому событию-источнику:
		// его редактирование отзывает голос, старое событие больше ни на что не влияет.
		_, err = tx.Exec(ctx, `
			UPDATE karma
			SET value = $5, given_from = $6, given_at = $7
			WHERE given_to = $1 AND given_by = $2 AND given_in = $3 AND given_for = $4
		`, to, voter, room, target, value, origin, now)
		if err != nil {
			return OutcomeNotFound, wrapKarmaError(err)
		}
		// Полный перенос из одного счётчика в другой: total смещается на 2*value
		if err := upsertCacheDelta(ctx, tx, to, 2*value, valueSign(value), -valueSign(value)); err != nil {
			return OutcomeNotFound, err
		}
		if err := tx.Commit(ctx); err != nil {
			return OutcomeNotFound, fmt.Errorf("ошибка фиксации транзакции: %w", err)
		}
		return OutcomeUpdated, nil
	}
}

// RetractByOrigin отзывает голос по его событию-источнику.
// Отзыв не-голоса — штатная ситуация: возвращается NotFound без ошибки.
func (r *Repository) RetractByOrigin(ctx context.Context, origin string) (Outcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var to string
	var value int
	err = tx.QueryRow(ctx, `
		SELECT given_to, value FROM karma WHERE given_from = $1 FOR UPDATE
	`, origin).Scan(&to, &value)
	if errors.Is(err, pgx.ErrNoRows) {
		return OutcomeNotFound, nil
	}
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("ошибка поиска голоса: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM karma WHERE given_from = $1`, origin); err != nil {
		return OutcomeNotFound, fmt.Errorf("ошибка удаления голоса: %w", err)
	}

	// Точный откат вклада. Строка агрегата намеренно не удаляется:
	// "нет кармы" — это отсутствие строки, нулевая строка от реальных
	// голосов остаётся нулевой строкой.
	_, err = tx.Exec(ctx, `
		UPDATE karma_cache
		SET total = total - $2, positive = positive - $3, negative = negative - $4
		WHERE user_id = $1
	`, to, value, boolToInt(value > 0), boolToInt(value < 0))
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("ошибка отката агрегата: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return OutcomeNotFound, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return OutcomeDeleted, nil
}

// IsVoteEvent проверяет, породило ли событие запись голоса.
// Нужно вызывающему, чтобы запретить «голос за голос».
func (r *Repository) IsVoteEvent(ctx context.Context, event string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM karma WHERE given_from = $1)`, event,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки события: %w", err)
	}
	return exists, nil
}

// Get возвращает голос по составному ключу или nil, если его нет.
func (r *Repository) Get(ctx context.Context, recipient *string, voter, room, target string) (*VoteRecord, error) {
	var rec VoteRecord
	var to string
	err := r.db.QueryRow(ctx, `
		SELECT given_to, given_by, given_in, given_for, given_from, given_at, value, content
		FROM karma
		WHERE given_to = $1 AND given_by = $2 AND given_in = $3 AND given_for = $4
	`, recipientToSQL(recipient), voter, room, target).Scan(
		&to, &rec.GivenBy, &rec.GivenIn, &rec.GivenFor,
		&rec.GivenFrom, &rec.GivenAt, &rec.Value, &rec.Content,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения голоса: %w", err)
	}
	rec.GivenTo = recipientFromSQL(to)
	return &rec, nil
}

// Export возвращает все голоса, где пользователь — получатель или голосующий.
// Порядок не гарантируется.
func (r *Repository) Export(ctx context.Context, user string) ([]VoteRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT given_to, given_by, given_in, given_for, given_from, given_at, value, content
		FROM karma
		WHERE given_to = $1 OR given_by = $1
	`, user)
	if err != nil {
		return nil, fmt.Errorf("ошибка выгрузки голосов: %w", err)
	}
	defer rows.Close()

	var records []VoteRecord
	for rows.Next() {
		var rec VoteRecord
		var to string
		if err := rows.Scan(
			&to, &rec.GivenBy, &rec.GivenIn, &rec.GivenFor,
			&rec.GivenFrom, &rec.GivenAt, &rec.Value, &rec.Content,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки выгрузки: %w", err)
		}
		rec.GivenTo = recipientFromSQL(to)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода выгрузки: %w", err)
	}
	return records, nil
}

// Recompute перестраивает агрегат пользователя полным проходом по журналу.
// Ремонтная операция после ручных правок или повреждения данных,
// в обычной работе не вызывается.
func (r *Repository) Recompute(ctx context.Context, user string) (*UserAggregate, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var total, positive, negative, votes int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(value), 0),
		       COUNT(*) FILTER (WHERE value > 0),
		       COUNT(*) FILTER (WHERE value < 0),
		       COUNT(*)
		FROM karma WHERE given_to = $1
	`, user).Scan(&total, &positive, &negative, &votes)
	if err != nil {
		return nil, fmt.Errorf("ошибка свёртки журнала: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM karma_cache WHERE user_id = $1`, user); err != nil {
		return nil, fmt.Errorf("ошибка сброса агрегата: %w", err)
	}

	if votes == 0 {
		// Голосов нет — нет и строки агрегата
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
		}
		return nil, nil
	}

	agg := &UserAggregate{UserID: user, Total: total, Positive: positive, Negative: negative}
	_, err = tx.Exec(ctx, `
		INSERT INTO karma_cache (user_id, total, positive, negative)
		VALUES ($1, $2, $3, $4)
	`, agg.UserID, agg.Total, agg.Positive, agg.Negative)
	if err != nil {
		return nil, fmt.Errorf("ошибка записи агрегата: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return agg, nil
}

// Audit находит всех пользователей, у которых karma_cache расходится
// со свёрткой журнала. Пустой результат означает консистентную базу.
func (r *Repository) Audit(ctx context.Context) ([]Divergence, error) {
	rows, err := r.db.Query(ctx, `
		SELECT COALESCE(c.user_id, l.user_id),
		       COALESCE(c.total, 0), COALESCE(c.positive, 0), COALESCE(c.negative, 0),
		       COALESCE(l.total, 0), COALESCE(l.positive, 0), COALESCE(l.negative, 0)
		FROM karma_cache c
		FULL OUTER JOIN (
			SELECT given_to AS user_id,
			       SUM(value) AS total,
			       COUNT(*) FILTER (WHERE value > 0) AS positive,
			       COUNT(*) FILTER (WHERE value < 0) AS negative
			FROM karma
			GROUP BY given_to
		) l ON l.user_id = c.user_id
		WHERE COALESCE(c.total, 0)    <> COALESCE(l.total, 0)
		   OR COALESCE(c.positive, 0) <> COALESCE(l.positive, 0)
		   OR COALESCE(c.negative, 0) <> COALESCE(l.negative, 0)
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса аудита: %w", err)
	}
	defer rows.Close()

	var found []Divergence
	for rows.Next() {
		var d Divergence
		if err := rows.Scan(
			&d.UserID,
			&d.Cached.Total, &d.Cached.Positive, &d.Cached.Negative,
			&d.Actual.Total, &d.Actual.Positive, &d.Actual.Negative,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки аудита: %w", err)
		}
		d.Cached.UserID = d.UserID
		d.Actual.UserID = d.UserID
		found = append(found, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода аудита: %w", err)
	}
	return found, nil
}

// upsertCacheDelta применяет дельту к агрегату пользователя,
// создавая строку при первом голосе.
func upsertCacheDelta(ctx context.Context, tx pgx.Tx, userID string, dTotal, dPositive, dNegative int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO karma_cache (user_id, total, positive, negative)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET total    = karma_cache.total    + EXCLUDED.total,
		    positive = karma_cache.positive + EXCLUDED.positive,
		    negative = karma_cache.negative + EXCLUDED.negative
	`, userID, dTotal, dPositive, dNegative)
	if err != nil {
		return fmt.Errorf("ошибка обновления агрегата: %w", err)
	}
	return nil
}

// wrapKarmaError переводит нарушение уникальности given_from
// в ошибку целостности ErrDuplicateOrigin.
func wrapKarmaError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", common.ErrDuplicateOrigin, pgErr.ConstraintName)
	}
	return fmt.Errorf("ошибка записи голоса: %w", err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// valueSign: +1 для положительного голоса, -1 для отрицательного.
// Смена знака переносит единицу между счётчиками positive/negative.
func valueSign(value int) int {
	if value > 0 {
		return 1
	}
	return -1
}
