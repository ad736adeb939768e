package quiz

import (
	"context"
	"errors"

	"mioserver/models"
	"mioserver/quiz/protocol"

	"go.uber.org/zap"
)

// judgeDelta は判定1件分の加算量。judge が nil (スルー) なら加算しない
func judgeDelta(judge *bool, allotment models.Allotment) (models.ScoreDelta, bool) {
	if judge == nil {
		return models.ScoreDelta{}, false
	}
	if *judge {
		return models.ScoreDelta{Correct: 1, Score: allotment.CorrectPoints}, true
	}
	return models.ScoreDelta{Wrong: 1, Score: allotment.WrongPoints}, true
}

// ChangeScore adds the master's manual deltas to a participant.
func (c *Coordinator) ChangeScore(ctx context.Context, sock Socket, req protocol.ChangeScoreRequest) error {
	return c.withCaller(ctx, sock, func(ctx context.Context, cl caller) error {
		if !cl.isMaster() {
			return rejectf("change-score from non-master %s", cl.userID)
		}
		if cl.room.IsMaster(req.UID) {
			return rejectf("change-score on master")
		}
		target, err := c.store.GetUser(ctx, req.UID)
		if errors.Is(err, models.ErrUserNotFound) {
			return rejectf("change-score on unknown user %s", req.UID)
		}
		if err != nil {
			return err
		}
		if target.RoomID != cl.room.ID {
			return rejectf("change-score on user %s of another room", req.UID)
		}

		users, err := c.store.ListUsers(ctx, cl.room.ID)
		if err != nil {
			return err
		}
		delta := models.ScoreDelta{Correct: req.Correct, Wrong: req.Wrong, Manual: req.Points}
		if err := c.store.AddScore(ctx, req.UID, delta); err != nil {
			return err
		}
		for i := range users {
			if users[i].ID == req.UID {
				users[i].Apply(delta)
			}
		}
		c.broadcastUsers(cl.room, users)
		c.logger.Info("Score changed", zap.String("roomID", cl.room.ID), zap.String("userID", req.UID))
		return nil
	})
}

// ChangeAllotment updates the points used for questions judged from now on.
func (c *Coordinator) ChangeAllotment(ctx context.Context, sock Socket, req protocol.ChangeAllotmentRequest) error {
	return c.withCaller(ctx, sock, func(ctx context.Context, cl caller) error {
		if !cl.isMaster() {
			return rejectf("change-allotment from non-master %s", cl.userID)
		}
		users, err := c.store.ListUsers(ctx, cl.room.ID)
		if err != nil {
			return err
		}
		allotment := models.Allotment{CorrectPoints: req.CorrectPoints, WrongPoints: req.WrongPoints}
		if err := c.store.UpdateAllotment(ctx, cl.room.ID, allotment); err != nil {
			return err
		}
		cl.room.Allotment = allotment

		c.broadcastQuizInfo(cl.room, users)
		return nil
	})
}
