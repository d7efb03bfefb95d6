// Package admin — handlers.go обрабатывает админ-команды в личке.
// Доступны: /login <пароль>, «пересчет <user_id>» (перестройка агрегата)
// и «аудит» (сверка агрегатов с журналом).
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/karma-bot/internal/common"
	"serotonyl.ru/karma-bot/internal/features/karma"
)

// Handler обрабатывает сообщения администратора.
type Handler struct {
	service *Service
	karma   *karma.Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик админки.
func NewHandler(service *Service, karmaService *karma.Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, karma: karmaService, bot: bot}
}

// HandleAdminMessage обрабатывает сообщение в личке.
// Возвращает true, если сообщение было админ-командой.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID, fromID int64, text string) bool {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "/login") {
		h.handleLogin(ctx, chatID, fromID, strings.TrimSpace(strings.TrimPrefix(text, "/login")))
		return true
	}

	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "пересчет", "пересчёт":
		if !h.requireSession(ctx, chatID, fromID) {
			return true
		}
		if len(fields) < 2 {
			h.sendMessage(chatID, "Использование: пересчет <user_id>")
			return true
		}
		h.handleRecompute(ctx, chatID, fields[1])
		return true

	case "аудит":
		if !h.requireSession(ctx, chatID, fromID) {
			return true
		}
		h.handleAudit(ctx, chatID)
		return true
	}

	return false
}

func (h *Handler) handleLogin(ctx context.Context, chatID, fromID int64, password string) {
	if password == "" {
		h.sendMessage(chatID, "Использование: /login <пароль>")
		return
	}

	err := h.service.VerifyPassword(ctx, fromID, password)
	switch {
	case err == nil:
		h.sendMessage(chatID, "✅ Вход выполнен. Команды: пересчет <user_id>, аудит")
	case errors.Is(err, common.ErrWrongPassword) || errors.Is(err, common.ErrTooManyAttempts):
		h.sendMessage(chatID, "❌ "+err.Error())
	default:
		log.WithError(err).Error("Ошибка входа администратора")
		h.sendMessage(chatID, "❌ Ошибка входа")
	}
}

func (h *Handler) requireSession(ctx context.Context, chatID, fromID int64) bool {
	if h.service.HasActiveSession(ctx, fromID) {
		return true
	}
	h.sendMessage(chatID, "Сначала авторизуйтесь: /login <пароль>")
	return false
}

func (h *Handler) handleRecompute(ctx context.Context, chatID int64, rawUserID string) {
	if _, err := strconv.ParseInt(rawUserID, 10, 64); err != nil {
		h.sendMessage(chatID, "user_id должен быть числом")
		return
	}

	agg, err := h.karma.Recompute(ctx, rawUserID)
	if err != nil {
		log.WithError(err).Error("Ошибка пересчёта кармы")
		h.sendMessage(chatID, "❌ Ошибка пересчёта")
		return
	}
	if agg == nil {
		h.sendMessage(chatID, fmt.Sprintf("У пользователя %s нет голосов, агрегат удалён", rawUserID))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf(
		"Агрегат пересчитан: %s (+%d/-%d)", common.Sign(agg.Total), agg.Positive, agg.Negative,
	))
}

func (h *Handler) handleAudit(ctx context.Context, chatID int64) {
	found, err := h.karma.Audit(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка аудита кармы")
		h.sendMessage(chatID, "❌ Ошибка аудита")
		return
	}
	if len(found) == 0 {
		h.sendMessage(chatID, "✅ Аудит пройден: расхождений нет")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⚠️ Найдено расхождений: %d\n", len(found)))
	for _, d := range found {
		sb.WriteString(fmt.Sprintf(
			"%s: кэш %d(+%d/-%d), журнал %d(+%d/-%d) — выполните «пересчет %s»\n",
			d.UserID,
			d.Cached.Total, d.Cached.Positive, d.Cached.Negative,
			d.Actual.Total, d.Actual.Positive, d.Actual.Negative,
			d.UserID,
		))
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
