package models

import (
	"time"
)

// User は部屋の参加者。部屋の削除時にのみまとめて削除される
type User struct {
	ID           string  `gorm:"primaryKey;type:uuid"`
	RoomID       string  `gorm:"type:uuid;not null;index"`
	Name         string  `gorm:"not null"`
	Credential   string  `gorm:"not null" json:"-"`
	SocketID     *string `gorm:"index"` // 接続中のソケット。nilならオフライン
	CorrectCount int     `gorm:"not null;default:0"`
	WrongCount   int     `gorm:"not null;default:0"`
	Score        int     `gorm:"not null;default:0"` // 判定で加算された得点
	ManualScore  int     `gorm:"not null;default:0"` // 出題者による手動調整分
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Online reports whether the user currently has a bound socket.
func (u *User) Online() bool {
	return u.SocketID != nil
}

// Points は表示用の合計得点
func (u *User) Points() int {
	return u.Score + u.ManualScore
}

// Apply は d を u のスコアに足し込む
func (u *User) Apply(d ScoreDelta) {
	u.CorrectCount += d.Correct
	u.WrongCount += d.Wrong
	u.Score += d.Score
	u.ManualScore += d.Manual
}

// ScoreDelta はスコアへの加算量。各フィールドは現在値に足し込まれる
type ScoreDelta struct {
	Correct int
	Wrong   int
	Score   int
	Manual  int
}
