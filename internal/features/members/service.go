// Package members — service.go содержит логику справочника участников.
package members

import (
	"context"
	"strconv"
)

// Service управляет справочником участников.
type Service struct {
	repo *Repository
}

// NewService создаёт сервис участников.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// EnsureMember регистрирует участника или обновляет его имена.
func (s *Service) EnsureMember(ctx context.Context, userID int64, username, firstName, lastName string) error {
	return s.repo.Upsert(ctx, &Member{
		UserID:    userID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
	})
}

// IsMember проверяет, известен ли участник.
func (s *Service) IsMember(ctx context.Context, userID int64) (bool, error) {
	return s.repo.Exists(ctx, userID)
}

// DisplayNames возвращает имена для отображения по строковым ID
// (в том виде, в каком их хранит карма). Неизвестные или нечисловые
// ID отображаются как есть.
func (s *Service) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	numeric := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		names[id] = id
		if v, err := strconv.ParseInt(id, 10, 64); err == nil {
			numeric = append(numeric, v)
		}
	}

	found, err := s.repo.GetByUserIDs(ctx, numeric)
	if err != nil {
		return nil, err
	}
	for _, m := range found {
		names[strconv.FormatInt(m.UserID, 10)] = m.DisplayName()
	}
	return names, nil
}
