// Package members ведёт справочник участников чата.
// models.go описывает структуру участника.
package members

import (
	"strconv"
	"time"
)

// Member — участник основного чата.
// Справочник нужен, чтобы показывать имена вместо числовых ID
// в рейтингах и пускать участников в личку бота.
type Member struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Username  string    `db:"username"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	JoinedAt  time.Time `db:"joined_at"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// DisplayName возвращает имя для отображения: @username,
// иначе имя и фамилия, иначе числовой ID.
func (m *Member) DisplayName() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	name := m.FirstName
	if m.LastName != "" {
		name += " " + m.LastName
	}
	if name == "" {
		return strconv.FormatInt(m.UserID, 10)
	}
	return name
}
