// Package karma — aggregate.go отвечает за запросы рейтингов.
// Пользовательские сводки читаются из karma_cache (поддерживается
// инкрементально на каждой мутации журнала), сводки по событиям
// каждый раз считаются группировкой по журналу: запросы по событиям
// редки, а множество событий не ограничено.
package karma

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UserKarma возвращает агрегат пользователя.
// nil без ошибки означает «кармы нет» — это не то же самое,
// что нулевая строка, оставшаяся от взаимно погасившихся голосов.
func (r *Repository) UserKarma(ctx context.Context, user string) (*UserAggregate, error) {
	var agg UserAggregate
	err := r.db.QueryRow(ctx, `
		SELECT user_id, total, positive, negative FROM karma_cache WHERE user_id = $1
	`, user).Scan(&agg.UserID, &agg.Total, &agg.Positive, &agg.Negative)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения агрегата: %w", err)
	}
	return &agg, nil
}

// RankOf возвращает позицию пользователя в общем рейтинге, начиная с 1.
// Равные суммы упорядочиваются по возрастанию user_id — рейтинг детерминирован.
// 0 означает, что пользователя в рейтинге нет.
// Скрытые получатели (пустой user_id) в рейтинге не участвуют.
func (r *Repository) RankOf(ctx context.Context, user string) (int, error) {
	var rank int
	err := r.db.QueryRow(ctx, `
		SELECT rank FROM (
			SELECT user_id,
			       ROW_NUMBER() OVER (ORDER BY total DESC, user_id ASC) AS rank
			FROM karma_cache
			WHERE user_id <> ''
		) ranked
		WHERE user_id = $1
	`, user).Scan(&rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка вычисления места: %w", err)
	}
	return rank, nil
}

// Top возвращает limit пользователей с наибольшей кармой.
func (r *Repository) Top(ctx context.Context, limit int) ([]UserAggregate, error) {
	return r.userList(ctx, `
		SELECT user_id, total, positive, negative
		FROM karma_cache
		WHERE user_id <> ''
		ORDER BY total DESC, user_id ASC
		LIMIT $1
	`, limit)
}

// Bottom возвращает limit пользователей с наименьшей кармой.
// Равные суммы и здесь упорядочены по возрастанию user_id.
func (r *Repository) Bottom(ctx context.Context, limit int) ([]UserAggregate, error) {
	return r.userList(ctx, `
		SELECT user_id, total, positive, negative
		FROM karma_cache
		WHERE user_id <> ''
		ORDER BY total ASC, user_id ASC
		LIMIT $1
	`, limit)
}

func (r *Repository) userList(ctx context.Context, query string, limit int) ([]UserAggregate, error) {
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса рейтинга: %w", err)
	}
	defer rows.Close()

	var list []UserAggregate
	for rows.Next() {
		var agg UserAggregate
		if err := rows.Scan(&agg.UserID, &agg.Total, &agg.Positive, &agg.Negative); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки рейтинга: %w", err)
		}
		list = append(list, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода рейтинга: %w", err)
	}
	return list, nil
}

// BestEvents возвращает limit событий с наибольшей суммой голосов.
func (r *Repository) BestEvents(ctx context.Context, limit int) ([]EventAggregate, error) {
	return r.eventList(ctx, eventListQuery("DESC"), limit)
}

// WorstEvents возвращает limit событий с наименьшей суммой голосов.
func (r *Repository) WorstEvents(ctx context.Context, limit int) ([]EventAggregate, error) {
	return r.eventList(ctx, eventListQuery("ASC"), limit)
}

// eventListQuery строит группировку журнала по событию.
// Фрагмент текста берётся из записи с наименьшим given_from —
// выбор произвольный, но детерминированный.
func eventListQuery(direction string) string {
	return fmt.Sprintf(`
		SELECT given_for,
		       given_in,
		       NULLIF(MIN(given_to), '') AS recipient,
		       SUM(value) AS total,
		       COUNT(*) FILTER (WHERE value > 0) AS positive,
		       COUNT(*) FILTER (WHERE value < 0) AS negative,
		       (array_agg(content ORDER BY given_from ASC))[1] AS content
		FROM karma
		GROUP BY given_in, given_for
		ORDER BY total %s, given_for ASC
		LIMIT $1
	`, direction)
}

func (r *Repository) eventList(ctx context.Context, query string, limit int) ([]EventAggregate, error) {
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса событий: %w", err)
	}
	defer rows.Close()

	var list []EventAggregate
	for rows.Next() {
		var agg EventAggregate
		if err := rows.Scan(
			&agg.EventID, &agg.RoomID, &agg.Recipient,
			&agg.Total, &agg.Positive, &agg.Negative, &agg.Content,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки событий: %w", err)
		}
		list = append(list, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода событий: %w", err)
	}
	return list, nil
}
