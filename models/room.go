package models

import (
	"time"
)

// Room はクイズ部屋のモデル。IDは推測不能なUUIDで、作成後に再利用されない。
type Room struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	MasterID  string    `gorm:"type:uuid;not null"` // 出題者のユーザーID。作成後は不変
	Stage     Stage     `gorm:"not null;default:0"`
	Round     int       `gorm:"not null;default:1"`
	Allotment Allotment `gorm:"embedded"`
	Users     []User    `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

// Allotment は正解・不正解時の配点
type Allotment struct {
	CorrectPoints int `gorm:"not null;default:0" json:"correctPoints"`
	WrongPoints   int `gorm:"not null;default:0" json:"wrongPoints"`
}

// Stage は部屋の進行状態
type Stage int

const (
	StageWaitingMusic  Stage = iota // 出題待ち
	StageWaitingAnswer              // 解答受付中
	StageWaitingReset               // 判定済み、リセット待ち
	StageWaitingStop                // 再生中、停止待ち
)

func (s Stage) String() string {
	switch s {
	case StageWaitingMusic:
		return "WAITING_MUSIC"
	case StageWaitingAnswer:
		return "WAITING_ANSWER"
	case StageWaitingReset:
		return "WAITING_RESET"
	case StageWaitingStop:
		return "WAITING_STOP"
	}
	return "UNKNOWN"
}

// IsMaster reports whether userID is the master of the room.
func (r *Room) IsMaster(userID string) bool {
	return r.MasterID == userID
}
