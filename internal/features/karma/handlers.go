// Package karma — handlers.go переводит события Telegram в операции
// сервиса кармы и форматирует ответы. Вся человекочитаемая текстовка
// живёт здесь, сервис и хранилище её не знают.
package karma

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/karma-bot/internal/common"
	"serotonyl.ru/karma-bot/internal/config"
	"serotonyl.ru/karma-bot/internal/features/members"
)

// Handler обрабатывает события кармы.
type Handler struct {
	service *Service
	members *members.Service
	bot     *tgbotapi.BotAPI
	cfg     *config.Config
}

// NewHandler создаёт обработчик кармы.
func NewHandler(service *Service, membersService *members.Service, bot *tgbotapi.BotAPI, cfg *config.Config) *Handler {
	return &Handler{service: service, members: membersService, bot: bot, cfg: cfg}
}

// Идентификаторы для журнала: пользователь — десятичный Telegram ID,
// чат — десятичный ID чата, событие — "<chat_id>/<message_id>".
func userID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func eventID(chatID int64, messageID int) string {
	return fmt.Sprintf("%d/%d", chatID, messageID)
}

// contentSnippet готовит фрагмент текста для хранения:
// обрезает длинные сообщения до 50 рун с многоточием.
func contentSnippet(text string) string {
	runes := []rune(text)
	if len(runes) > 60 {
		return string(runes[:50]) + " …"
	}
	return text
}

// HandleReplyVote обрабатывает голос, отправленный ответом на сообщение.
func (h *Handler) HandleReplyVote(ctx context.Context, message *tgbotapi.Message, value int) {
	target := message.ReplyToMessage
	if target == nil || target.From == nil {
		return
	}

	outcome, err := h.service.ProposeVote(ctx, VoteRequest{
		RoomID:         userID(message.Chat.ID),
		VoterID:        userID(message.From.ID),
		TargetEventID:  eventID(message.Chat.ID, target.MessageID),
		TargetAuthorID: userID(target.From.ID),
		OriginEventID:  eventID(message.Chat.ID, message.MessageID),
		Value:          value,
		Content:        contentSnippet(target.Text),
	})
	if err != nil {
		log.WithError(err).Error("Ошибка применения голоса")
		return
	}

	switch outcome {
	case OutcomeCreated, OutcomeUpdated:
		h.reply(message, fmt.Sprintf("⭐ %s к карме!", common.Sign(value)))
	case OutcomeUnchanged:
		h.rejectReply(message, fmt.Sprintf("Ты уже ставил %s этому сообщению.", common.Sign(value)))
	case OutcomeRejectedSelfVote:
		h.rejectReply(message, "Эй! Себе карму поднимать нельзя.")
	case OutcomeRejectedVoteOnVote:
		h.rejectReply(message, "За голос голосовать нельзя.")
	case OutcomeRejectedFiltered:
		// Игнорируемых голосующих не уведомляем никогда
	}
}

// HandleRetract отзывает голос: пользователь ответил «отмена»
// на собственное сообщение-голос.
func (h *Handler) HandleRetract(ctx context.Context, message *tgbotapi.Message) {
	target := message.ReplyToMessage
	if target == nil || target.From == nil {
		return
	}
	// Чужие голоса отзывать нельзя
	if target.From.ID != message.From.ID {
		return
	}

	outcome, err := h.service.NotifyRedaction(ctx, eventID(message.Chat.ID, target.MessageID))
	if err != nil {
		log.WithError(err).Error("Ошибка отзыва голоса")
		return
	}
	if outcome == OutcomeDeleted {
		h.reply(message, "Голос отозван.")
	}
	// NotFound молчим: ответили «отмена» не на голос
}

// HandleKarma — команда !карма без аргументов. Показывает свою карму и место.
func (h *Handler) HandleKarma(ctx context.Context, chatID, fromID int64) {
	agg, rank, err := h.service.Karma(ctx, userID(fromID))
	if err != nil {
		log.WithError(err).Error("Ошибка получения кармы")
		h.sendMessage(chatID, "❌ Ошибка получения кармы")
		return
	}
	if agg == nil {
		h.sendMessage(chatID, "У тебя пока нет кармы :(")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf(
		"⭐ Твоя карма: %s (+%d/-%d), место в рейтинге: #%d",
		common.Sign(agg.Total), agg.Positive, agg.Negative, rank,
	))
}

// HandleKarmaList — команда !карма <топ|низ|лучшие|худшие>.
func (h *Handler) HandleKarmaList(ctx context.Context, chatID int64, listType string) {
	switch strings.ToLower(listType) {
	case "топ", "top":
		h.sendUserList(ctx, chatID, "🏆 Самая высокая карма", h.service.TopUsers)
	case "низ", "дно", "bottom":
		h.sendUserList(ctx, chatID, "🕳 Самая низкая карма", h.service.BottomUsers)
	case "лучшие", "best":
		h.sendEventList(ctx, chatID, "💬 Лучшие сообщения", h.service.BestEvents)
	case "худшие", "worst":
		h.sendEventList(ctx, chatID, "💬 Худшие сообщения", h.service.WorstEvents)
	default:
		h.sendMessage(chatID, "Использование: !карма [топ|низ|лучшие|худшие|экспорт]")
	}
}

func (h *Handler) sendUserList(ctx context.Context, chatID int64, title string,
	fetch func(context.Context) ([]UserAggregate, error)) {

	list, err := fetch(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения рейтинга")
		h.sendMessage(chatID, "❌ Ошибка получения рейтинга")
		return
	}
	if len(list) == 0 {
		h.sendMessage(chatID, "Пока никто не получал карму.")
		return
	}

	ids := make([]string, 0, len(list))
	for _, agg := range list {
		ids = append(ids, agg.UserID)
	}
	names, err := h.members.DisplayNames(ctx, ids)
	if err != nil {
		log.WithError(err).Warn("Не удалось получить имена участников")
		names = map[string]string{}
	}

	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n")
	for i, agg := range list {
		name, ok := names[agg.UserID]
		if !ok {
			name = agg.UserID
		}
		sb.WriteString(fmt.Sprintf("%d. %s: %s (+%d/-%d)\n",
			i+1, name, common.Sign(agg.Total), agg.Positive, agg.Negative))
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) sendEventList(ctx context.Context, chatID int64, title string,
	fetch func(context.Context) ([]EventAggregate, error)) {

	list, err := fetch(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения списка сообщений")
		h.sendMessage(chatID, "❌ Ошибка получения списка сообщений")
		return
	}
	if len(list) == 0 {
		h.sendMessage(chatID, "Пока ни одно сообщение не получало голосов.")
		return
	}

	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n")
	for i, agg := range list {
		sb.WriteString(fmt.Sprintf("%d. %s (+%d/-%d)",
			i+1, common.Sign(agg.Total), agg.Positive, agg.Negative))
		if agg.Content != "" {
			sb.WriteString(fmt.Sprintf(" — «%s»", agg.Content))
		}
		sb.WriteString("\n")
	}
	h.sendMessage(chatID, sb.String())
}

// HandleExport — команда !карма экспорт. Отправляет все голоса пользователя
// JSON-файлом (в личку, чтобы не засорять чат).
func (h *Handler) HandleExport(ctx context.Context, fromID int64) {
	data, err := h.service.Export(ctx, userID(fromID))
	if err != nil {
		log.WithError(err).Error("Ошибка выгрузки кармы")
		h.sendMessage(fromID, "❌ Ошибка выгрузки кармы")
		return
	}

	file := tgbotapi.FileBytes{
		Name:  fmt.Sprintf("karma-%d.json", fromID),
		Bytes: data,
	}
	doc := tgbotapi.NewDocument(fromID, file)
	if _, err := h.bot.Send(doc); err != nil {
		log.WithError(err).Error("Ошибка отправки файла выгрузки")
	}
}

func (h *Handler) reply(to *tgbotapi.Message, text string) {
	msg := tgbotapi.NewMessage(to.Chat.ID, text)
	msg.ReplyToMessageID = to.MessageID
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}

// rejectReply отвечает на отклонённый голос, если уведомления включены.
func (h *Handler) rejectReply(to *tgbotapi.Message, text string) {
	if !h.cfg.KarmaNotifyRejections {
		return
	}
	h.reply(to, text)
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
