// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: форматирование знака кармы и русская плюрализация.
package common

import (
	"fmt"
	"math"
	"strconv"
)

// Sign форматирует значение кармы со знаком.
//
// Примеры:
//
//	Sign(3)  → "+3"
//	Sign(-2) → "-2"
//	Sign(0)  → "±0"
func Sign(value int) string {
	if value > 0 {
		return "+" + strconv.Itoa(value)
	}
	if value < 0 {
		return strconv.Itoa(value)
	}
	return "±0"
}

// PluralizePoints возвращает правильную форму слова «очко» для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → "очко" (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → "очка" (2, 3, 4, 22, ...)
//   - Остальные случаи → "очков" (0, 5-20, 25-30, 100, ...)
func PluralizePoints(n int) string {
	absN := int(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return "очко"
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return "очка"
	}
	return "очков"
}

// FormatKarma форматирует карму в читабельную строку.
// Пример: FormatKarma(5) → "+5 очков"
func FormatKarma(total int) string {
	return fmt.Sprintf("%s %s", Sign(total), PluralizePoints(total))
}
