package quiz

import (
	"context"
	"errors"
	"time"

	"mioserver/models"
	"mioserver/quiz/protocol"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Disconnect tears down sock. If it was the room's last online member the room and
// all its users are deleted. Calling it again for the same socket does nothing.
func (c *Coordinator) Disconnect(ctx context.Context, sock Socket) {
	defer c.hub.remove(sock.ID())

	b, ok := c.hub.binding(sock.ID())
	if !ok {
		return
	}
	err := c.inRoom(ctx, b.RoomID, func(ctx context.Context) error {
		return c.detach(ctx, sock, b)
	})
	if err != nil {
		c.logger.Error("Failed to detach socket",
			zap.String("roomID", b.RoomID), zap.String("userID", b.UserID), zap.Error(err))
	}
}

func (c *Coordinator) detach(ctx context.Context, sock Socket, b binding) error {
	// 待っている間に置き換えられたか、既に処理済み
	if cur, ok := c.hub.binding(sock.ID()); !ok || cur != b {
		return nil
	}

	users, err := c.store.ListUsers(ctx, b.RoomID)
	if err != nil {
		return err
	}
	for i := range users {
		if users[i].ID == b.UserID {
			c.emitRoom(users, b.UserID, protocol.EventChat, protocol.ChatMessage{
				MID:  uuid.NewString(),
				UID:  b.UserID,
				Name: users[i].Name,
				Tag:  protocol.TagLeave,
			})
		}
	}

	if _, err := c.store.ClearSocket(ctx, b.UserID, sock.ID()); err != nil {
		return err
	}
	c.hub.unbind(sock.ID())

	online, err := c.store.AnyoneOnline(ctx, b.RoomID)
	if err != nil {
		return err
	}
	if !online {
		return c.deleteRoom(ctx, b.RoomID)
	}

	room, err := c.store.GetRoom(ctx, b.RoomID)
	if errors.Is(err, models.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	users, err = c.store.ListUsers(ctx, b.RoomID)
	if err != nil {
		return err
	}
	c.broadcastUsers(room, users)
	return nil
}

func (c *Coordinator) deleteRoom(ctx context.Context, roomID string) error {
	if err := c.store.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	c.answers.reset(roomID)
	c.logger.Info("Room deleted", zap.String("roomID", roomID))
	return nil
}

// SweepAbandoned deletes rooms untouched since before with nobody online. Each room
// is checked again on its own queue before deletion.
func (c *Coordinator) SweepAbandoned(ctx context.Context, before time.Time) (int, error) {
	ids, err := c.store.AbandonedRooms(ctx, before)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		roomID := id
		err := c.inRoom(ctx, roomID, func(ctx context.Context) error {
			room, err := c.store.GetRoom(ctx, roomID)
			if errors.Is(err, models.ErrRoomNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if !room.UpdatedAt.Before(before) {
				return nil
			}
			online, err := c.store.AnyoneOnline(ctx, roomID)
			if err != nil || online {
				return err
			}
			if err := c.deleteRoom(ctx, roomID); err != nil {
				return err
			}
			deleted++
			return nil
		})
		if err != nil {
			c.logger.Error("Failed to sweep room", zap.String("roomID", roomID), zap.Error(err))
		}
	}
	return deleted, nil
}

// Connections は接続中のソケット数
func (c *Coordinator) Connections() int {
	return c.hub.count()
}
