// Package karma — service.go содержит политику голосования.
// Сервис принимает уже разобранное намерение проголосовать, применяет
// правила (самоголос, голос за голос, фильтры, анонимность) и обращается
// к хранилищу. Текст для пользователя сервис не форматирует — это
// обязанность обработчиков.
package karma

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/karma-bot/internal/common"
	"serotonyl.ru/karma-bot/internal/config"
	"serotonyl.ru/karma-bot/internal/metrics"
)

// Store — операции хранилища, нужные сервису.
// Реализуется Repository; в тестах подменяется in-memory двойником.
type Store interface {
	ApplyVote(ctx context.Context, recipient *string, voter, room, target, origin string, value int, content string) (Outcome, error)
	RetractByOrigin(ctx context.Context, origin string) (Outcome, error)
	IsVoteEvent(ctx context.Context, event string) (bool, error)
	Get(ctx context.Context, recipient *string, voter, room, target string) (*VoteRecord, error)
	Export(ctx context.Context, user string) ([]VoteRecord, error)
	Recompute(ctx context.Context, user string) (*UserAggregate, error)
	Audit(ctx context.Context) ([]Divergence, error)
	UserKarma(ctx context.Context, user string) (*UserAggregate, error)
	RankOf(ctx context.Context, user string) (int, error)
	Top(ctx context.Context, limit int) ([]UserAggregate, error)
	Bottom(ctx context.Context, limit int) ([]UserAggregate, error)
	BestEvents(ctx context.Context, limit int) ([]EventAggregate, error)
	WorstEvents(ctx context.Context, limit int) ([]EventAggregate, error)
}

// VoteRequest — проверенное намерение проголосовать.
// Все идентификаторы — непрозрачные строки; автор оценённого события
// уже разрешён вызывающей стороной.
type VoteRequest struct {
	RoomID        string
	VoterID       string
	TargetEventID string
	// TargetAuthorID — автор оценённого события (получатель кармы)
	TargetAuthorID string
	// OriginEventID — событие, которым проголосовали
	OriginEventID string
	// Value — +1 или -1
	Value int
	// Content — фрагмент текста оценённого сообщения
	Content string
}

// Service управляет системой кармы.
type Service struct {
	store     Store
	cfg       *config.Config
	filtered  map[string]struct{}
	anonymous map[string]struct{}
}

// NewService создаёт сервис кармы.
func NewService(store Store, cfg *config.Config) *Service {
	return &Service{
		store:     store,
		cfg:       cfg,
		filtered:  idSet(cfg.KarmaFilters),
		anonymous: idSet(cfg.KarmaAnonymous),
	}
}

func idSet(ids []int64) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[fmt.Sprintf("%d", id)] = struct{}{}
	}
	return set
}

// ProposeVote применяет правила и записывает голос.
// Отказы политики возвращаются как Outcome без ошибки.
func (s *Service) ProposeVote(ctx context.Context, req VoteRequest) (Outcome, error) {
	if req.Value != 1 && req.Value != -1 {
		return OutcomeNotFound, common.ErrInvalidValue
	}

	if _, ok := s.filtered[req.VoterID]; ok {
		metrics.VotesTotal.WithLabelValues(OutcomeRejectedFiltered.String()).Inc()
		return OutcomeRejectedFiltered, nil
	}

	// Поднимать карму самому себе нельзя; опустить — пожалуйста
	if req.VoterID == req.TargetAuthorID && req.Value > 0 {
		metrics.VotesTotal.WithLabelValues(OutcomeRejectedSelfVote.String()).Inc()
		return OutcomeRejectedSelfVote, nil
	}

	isVote, err := s.store.IsVoteEvent(ctx, req.TargetEventID)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("is_vote_event").Inc()
		return OutcomeNotFound, err
	}
	if isVote {
		metrics.VotesTotal.WithLabelValues(OutcomeRejectedVoteOnVote.String()).Inc()
		return OutcomeRejectedVoteOnVote, nil
	}

	recipient := &req.TargetAuthorID
	content := req.Content
	if _, ok := s.anonymous[req.TargetAuthorID]; ok {
		// Получатель отказался от публичной кармы: голос учитывается,
		// но получатель скрыт и текст не сохраняется
		recipient = nil
		content = ""
	}
	if !s.cfg.KarmaStoreContent {
		content = ""
	}

	outcome, err := s.store.ApplyVote(ctx, recipient, req.VoterID, req.RoomID,
		req.TargetEventID, req.OriginEventID, req.Value, content)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("apply_vote").Inc()
		return outcome, err
	}

	metrics.VotesTotal.WithLabelValues(outcome.String()).Inc()
	log.WithFields(log.Fields{
		"voter":   req.VoterID,
		"room":    req.RoomID,
		"target":  req.TargetEventID,
		"value":   req.Value,
		"outcome": outcome.String(),
	}).Debug("Голос обработан")
	return outcome, nil
}

// NotifyRedaction отзывает голос по удалённому событию-источнику.
// Удаление события, не порождавшего голос, — штатный NotFound.
func (s *Service) NotifyRedaction(ctx context.Context, eventID string) (Outcome, error) {
	outcome, err := s.store.RetractByOrigin(ctx, eventID)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("retract").Inc()
		return outcome, err
	}
	metrics.RetractionsTotal.WithLabelValues(outcome.String()).Inc()
	if outcome == OutcomeDeleted {
		log.WithField("origin", eventID).Info("Голос отозван")
	}
	return outcome, nil
}

// Karma возвращает агрегат пользователя и его место в рейтинге (с 1).
// nil-агрегат означает «кармы нет», место тогда равно 0.
func (s *Service) Karma(ctx context.Context, userID string) (*UserAggregate, int, error) {
	agg, err := s.store.UserKarma(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if agg == nil {
		return nil, 0, nil
	}
	rank, err := s.store.RankOf(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return agg, rank, nil
}

// TopUsers возвращает рейтинг лучших (размер — из конфигурации).
func (s *Service) TopUsers(ctx context.Context) ([]UserAggregate, error) {
	return s.store.Top(ctx, s.cfg.KarmaListSize)
}

// BottomUsers возвращает рейтинг худших.
func (s *Service) BottomUsers(ctx context.Context) ([]UserAggregate, error) {
	return s.store.Bottom(ctx, s.cfg.KarmaListSize)
}

// BestEvents возвращает самые заплюсованные события.
func (s *Service) BestEvents(ctx context.Context) ([]EventAggregate, error) {
	return s.store.BestEvents(ctx, s.cfg.KarmaListSize)
}

// WorstEvents возвращает самые заминусованные события.
func (s *Service) WorstEvents(ctx context.Context) ([]EventAggregate, error) {
	return s.store.WorstEvents(ctx, s.cfg.KarmaListSize)
}

// Get возвращает голос по составному ключу (nil — голоса нет).
func (s *Service) Get(ctx context.Context, recipient *string, voter, room, target string) (*VoteRecord, error) {
	return s.store.Get(ctx, recipient, voter, room, target)
}

// exportRecord фиксирует внешний формат выгрузки.
// Имена и порядок полей менять нельзя: формат совместим
// с существующими выгрузками.
type exportRecord struct {
	To      string `json:"to"`
	By      string `json:"by"`
	In      string `json:"in"`
	For     string `json:"for"`
	From    string `json:"from"`
	At      int64  `json:"at"`
	Value   int    `json:"value"`
	Content string `json:"content"`
}

// Export выгружает все голоса пользователя (полученные и отданные)
// одним JSON-массивом.
func (s *Service) Export(ctx context.Context, userID string) ([]byte, error) {
	records, err := s.store.Export(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]exportRecord, 0, len(records))
	for _, rec := range records {
		to := ""
		if rec.GivenTo != nil {
			to = *rec.GivenTo
		}
		out = append(out, exportRecord{
			To:      to,
			By:      rec.GivenBy,
			In:      rec.GivenIn,
			For:     rec.GivenFor,
			From:    rec.GivenFrom,
			At:      rec.GivenAt,
			Value:   rec.Value,
			Content: rec.Content,
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации выгрузки: %w", err)
	}
	return data, nil
}

// Recompute перестраивает агрегат пользователя с нуля (ремонт).
func (s *Service) Recompute(ctx context.Context, userID string) (*UserAggregate, error) {
	agg, err := s.store.Recompute(ctx, userID)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("recompute").Inc()
		return nil, err
	}
	log.WithField("user_id", userID).Info("Агрегат кармы перестроен")
	return agg, nil
}

// Audit сверяет karma_cache со свёрткой журнала по всем пользователям
// и возвращает найденные расхождения.
func (s *Service) Audit(ctx context.Context) ([]Divergence, error) {
	found, err := s.store.Audit(ctx)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("audit").Inc()
		return nil, err
	}
	for _, d := range found {
		metrics.AuditDivergenceTotal.Inc()
		log.WithFields(log.Fields{
			"user_id": d.UserID,
			"cached":  fmt.Sprintf("%d(+%d/-%d)", d.Cached.Total, d.Cached.Positive, d.Cached.Negative),
			"actual":  fmt.Sprintf("%d(+%d/-%d)", d.Actual.Total, d.Actual.Positive, d.Actual.Negative),
		}).Error("Расхождение агрегата кармы с журналом")
	}
	return found, nil
}
