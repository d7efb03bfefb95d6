// Package karma — detector.go распознаёт голоса в тексте ответа.
package karma

import (
	"regexp"
	"strings"
)

// Паттерны голосов: эмодзи (с модификаторами тона кожи), шорткоды и текст.
var (
	upvotePattern   = regexp.MustCompile(`^(?:\x{1F44D}[\x{1F3FB}-\x{1F3FF}]?|:\+1:|:thumbsup:|\+(?:1|\+)?)$`)
	downvotePattern = regexp.MustCompile(`^(?:\x{1F44E}[\x{1F3FB}-\x{1F3FF}]?|:-1:|:thumbsdown:|-(?:1|-)?)$`)
)

// ParseVote распознаёт голос в тексте сообщения.
// Возвращает +1 для апвота (👍, :+1:, "+", "++", "+1"),
// -1 для даунвота (👎, :-1:, "-", "--", "-1") и false, если это не голос.
func ParseVote(text string) (int, bool) {
	cleaned := strings.TrimSpace(text)
	if upvotePattern.MatchString(cleaned) {
		return 1, true
	}
	if downvotePattern.MatchString(cleaned) {
		return -1, true
	}
	return 0, false
}

// IsRetract проверяет, является ли текст запросом на отзыв голоса.
// Регистр не важен. Пунктуация в конце допускается.
func IsRetract(text string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	cleaned = strings.TrimRight(cleaned, "!.,;:)")
	return cleaned == "отмена"
}
