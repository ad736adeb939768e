package quiz

import (
	"context"

	"mioserver/models"
	"mioserver/quiz/protocol"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (c *Coordinator) send(sock Socket, event string, data interface{}) {
	if err := sock.Send(protocol.Outbound{Type: event, Data: data}); err != nil {
		c.logger.Warn("Failed to send event",
			zap.String("type", event), zap.String("socketID", sock.ID()), zap.Error(err))
	}
}

func (c *Coordinator) ack(sock Socket, id *uint64, data interface{}, errMsg string) {
	if id == nil {
		return
	}
	msg := protocol.Outbound{Type: protocol.EventAck, Ack: id, Data: data, Error: errMsg}
	if err := sock.Send(msg); err != nil {
		c.logger.Warn("Failed to send ack", zap.String("socketID", sock.ID()), zap.Error(err))
	}
}

// sendTo はユーザーのソケットが生きていれば送る
func (c *Coordinator) sendTo(u *models.User, event string, data interface{}) bool {
	if u.SocketID == nil {
		return false
	}
	sock, ok := c.hub.socket(*u.SocketID)
	if !ok {
		return false
	}
	c.send(sock, event, data)
	return true
}

// emitRoom sends to every online member except exceptUserID (empty sends to all).
func (c *Coordinator) emitRoom(users []models.User, exceptUserID string, event string, data interface{}) {
	for i := range users {
		if users[i].ID == exceptUserID {
			continue
		}
		c.sendTo(&users[i], event, data)
	}
}

func quizInfo(room *models.Room) protocol.QuizInfo {
	return protocol.QuizInfo{
		Round:         room.Round,
		CorrectPoints: room.Allotment.CorrectPoints,
		WrongPoints:   room.Allotment.WrongPoints,
	}
}

func member(room *models.Room, u *models.User) protocol.Member {
	return protocol.Member{
		UID:          u.ID,
		Name:         u.Name,
		Online:       u.Online(),
		Master:       room.IsMaster(u.ID),
		CorrectCount: u.CorrectCount,
		WrongCount:   u.WrongCount,
		Points:       u.Points(),
	}
}

// memberList は受信者本人を先頭に、オンライン、オフラインの順 (それぞれ参加順) に並べる
func memberList(room *models.Room, users []models.User, recipientID string) []protocol.Member {
	list := make([]protocol.Member, 0, len(users))
	for i := range users {
		if users[i].ID == recipientID {
			list = append(list, member(room, &users[i]))
		}
	}
	for _, online := range []bool{true, false} {
		for i := range users {
			if users[i].ID != recipientID && users[i].Online() == online {
				list = append(list, member(room, &users[i]))
			}
		}
	}
	return list
}

// broadcastUsers sends every online member the member list, each with their own entry first.
func (c *Coordinator) broadcastUsers(room *models.Room, users []models.User) {
	for i := range users {
		if users[i].Online() {
			c.sendTo(&users[i], protocol.EventUsers, memberList(room, users, users[i].ID))
		}
	}
}

func (c *Coordinator) broadcastQuizInfo(room *models.Room, users []models.User) {
	c.emitRoom(users, "", protocol.EventQuizInfo, quizInfo(room))
}

// Chat relays a chat message to the whole room, sender included.
func (c *Coordinator) Chat(ctx context.Context, sock Socket, req protocol.ChatRequest) error {
	return c.withCaller(ctx, sock, func(ctx context.Context, cl caller) error {
		users, err := c.store.ListUsers(ctx, cl.room.ID)
		if err != nil {
			return err
		}
		name := ""
		for i := range users {
			if users[i].ID == cl.userID {
				name = users[i].Name
			}
		}
		c.emitRoom(users, "", protocol.EventChat, protocol.ChatMessage{
			MID:  uuid.NewString(),
			UID:  cl.userID,
			Name: name,
			Body: req.Body,
			Tag:  protocol.TagMessage,
		})
		return nil
	})
}
