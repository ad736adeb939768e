package quiz

import (
	"context"
	"sort"
	"sync"

	"mioserver/models"
	"mioserver/quiz/protocol"

	"go.uber.org/zap"
)

// pendingAnswers は部屋ごとの今の問題への解答。部屋のキュー上でのみ更新される
type pendingAnswers struct {
	mu    sync.Mutex
	rooms map[string]map[string]protocol.Judgement
}

func newPendingAnswers() *pendingAnswers {
	return &pendingAnswers{rooms: make(map[string]map[string]protocol.Judgement)}
}

func (p *pendingAnswers) reset(roomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rooms, roomID)
}

// record は最初の解答だけを受け付ける
func (p *pendingAnswers) record(roomID, userID string, j protocol.Judgement) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	answers, ok := p.rooms[roomID]
	if !ok {
		answers = make(map[string]protocol.Judgement)
		p.rooms[roomID] = answers
	}
	if _, dup := answers[userID]; dup {
		return false
	}
	answers[userID] = j
	return true
}

// peek は解答のコピーを返す。採点が確定するまで消さない
func (p *pendingAnswers) peek(roomID string) map[string]protocol.Judgement {
	p.mu.Lock()
	defer p.mu.Unlock()

	answers := make(map[string]protocol.Judgement, len(p.rooms[roomID]))
	for id, j := range p.rooms[roomID] {
		answers[id] = j
	}
	return answers
}

// PoseQuestion starts a question: WAITING_MUSIC to WAITING_ANSWER (or WAITING_STOP
// when stoppable). The round advances and the clip goes to everyone but the master.
func (c *Coordinator) PoseQuestion(ctx context.Context, sock Socket, req protocol.QuizMusic) error {
	return c.withCaller(ctx, sock, func(ctx context.Context, cl caller) error {
		if !cl.isMaster() {
			return rejectf("pose-question from non-master %s", cl.userID)
		}
		if cl.room.Stage != models.StageWaitingMusic {
			return rejectf("pose-question in stage %s", cl.room.Stage)
		}

		to := models.StageWaitingAnswer
		if req.Stoppable {
			to = models.StageWaitingStop
		}
		// 配信先は書き込む前に読む。失敗しても部屋は WAITING_MUSIC のまま
		users, err := c.store.ListUsers(ctx, cl.room.ID)
		if err != nil {
			return err
		}
		round, ok, err := c.store.StartRound(ctx, cl.room.ID, to, models.StageWaitingMusic)
		if err != nil {
			return err
		}
		if !ok {
			return rejectf("stage changed under pose-question")
		}
		cl.room.Stage, cl.room.Round = to, round
		c.answers.reset(cl.room.ID)

		c.broadcastQuizInfo(cl.room, users)
		c.emitRoom(users, cl.userID, protocol.EventQuizMusic, req)

		c.logger.Info("Question posed",
			zap.String("roomID", cl.room.ID), zap.Int("round", round), zap.Bool("stoppable", req.Stoppable))
		return nil
	})
}

// StopPlayback ends a stoppable question's playback and opens answering.
func (c *Coordinator) StopPlayback(ctx context.Context, sock Socket) error {
	return c.withCaller(ctx, sock, func(ctx context.Context, cl caller) error {
		if !cl.isMaster() {
			return rejectf("stop-playback from non-master %s", cl.userID)
		}
		if cl.room.Stage != models.StageWaitingStop {
			return rejectf("stop-playback in stage %s", cl.room.Stage)
		}
		users, err := c.store.ListUsers(ctx, cl.room.ID)
		if err != nil {
			return err
		}
		ok, err := c.store.UpdateStage(ctx, cl.room.ID, models.StageWaitingAnswer, models.StageWaitingStop)
		if err != nil {
			return err
		}
		if !ok {
			return rejectf("stage changed under stop-playback")
		}
		c.emitRoom(users, cl.userID, protocol.EventQuizStopMusic, protocol.StopMusic{})
		return nil
	})
}

// SubmitAnswer forwards a participant's answer to the master's socket only.
// The first answer per participant and question wins.
func (c *Coordinator) SubmitAnswer(ctx context.Context, sock Socket, req protocol.AnswerRequest) error {
	return c.withCaller(ctx, sock, func(ctx context.Context, cl caller) error {
		if cl.isMaster() {
			return rejectf("answer from master %s", cl.userID)
		}
		if cl.room.Stage != models.StageWaitingAnswer {
			return rejectf("answer in stage %s", cl.room.Stage)
		}

		master, err := c.store.GetUser(ctx, cl.room.MasterID)
		if err != nil {
			return err
		}
		if master.SocketID == nil {
			return rejectf("master of room %s is offline", cl.room.ID)
		}
		masterSock, ok := c.hub.socket(*master.SocketID)
		if !ok {
			return rejectf("master of room %s is offline", cl.room.ID)
		}
		if !c.answers.record(cl.room.ID, cl.userID, protocol.Judgement{Answer: req.Answer, Time: req.Time}) {
			return rejectf("duplicate answer from %s", cl.userID)
		}

		c.send(masterSock, protocol.EventQuizAnswer, protocol.QuizAnswer{
			UID:    cl.userID,
			Time:   req.Time,
			Answer: req.Answer,
		})
		return nil
	})
}

// SubmitResult applies the master's judgements to the pending answers, moves the
// room to WAITING_RESET and shows the result to everyone but the master.
func (c *Coordinator) SubmitResult(ctx context.Context, sock Socket, req protocol.QuizResult) error {
	return c.withCaller(ctx, sock, func(ctx context.Context, cl caller) error {
		if !cl.isMaster() {
			return rejectf("judged result from non-master %s", cl.userID)
		}
		if cl.room.Stage != models.StageWaitingAnswer && cl.room.Stage != models.StageWaitingStop {
			return rejectf("judged result in stage %s", cl.room.Stage)
		}
		users, err := c.store.ListUsers(ctx, cl.room.ID)
		if err != nil {
			return err
		}
		inRoom := make(map[string]bool, len(users))
		for _, u := range users {
			inRoom[u.ID] = true
		}

		pending := c.answers.peek(cl.room.ID)
		ids := make([]string, 0, len(pending))
		for id := range pending {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		// 採点するのは受け付けた解答だけ。スルーは判定しない
		answers := make(map[string]protocol.Judgement, len(pending))
		deltas := make(map[string]models.ScoreDelta)
		for _, id := range ids {
			entry := pending[id]
			if entry.Answer != nil {
				entry.Judge = req.Answers[id].Judge
			}
			answers[id] = entry
			if delta, ok := judgeDelta(entry.Judge, cl.room.Allotment); ok && inRoom[id] {
				deltas[id] = delta
			}
		}

		// 段階の更新と加算はまとめて確定する。失敗したら解答は残り、出題者は同じ判定を送り直せる
		ok, err := c.store.JudgeRound(ctx, cl.room.ID, deltas, models.StageWaitingAnswer, models.StageWaitingStop)
		if err != nil {
			return err
		}
		if !ok {
			return rejectf("stage changed under judged result")
		}
		cl.room.Stage = models.StageWaitingReset
		c.answers.reset(cl.room.ID)
		for i := range users {
			if delta, ok := deltas[users[i].ID]; ok {
				users[i].Apply(delta)
			}
		}

		c.broadcastUsers(cl.room, users)
		c.emitRoom(users, cl.userID, protocol.EventQuizResult, protocol.QuizResult{
			Answer:  req.Answer,
			Answers: answers,
		})

		c.logger.Info("Result judged",
			zap.String("roomID", cl.room.ID), zap.Int("round", cl.room.Round), zap.Int("answers", len(answers)))
		return nil
	})
}

// ResetGame returns a judged room to WAITING_MUSIC.
func (c *Coordinator) ResetGame(ctx context.Context, sock Socket, req protocol.QuizReset) error {
	return c.withCaller(ctx, sock, func(ctx context.Context, cl caller) error {
		if !cl.isMaster() {
			return rejectf("reset from non-master %s", cl.userID)
		}
		if cl.room.Stage != models.StageWaitingReset {
			return rejectf("reset in stage %s", cl.room.Stage)
		}
		users, err := c.store.ListUsers(ctx, cl.room.ID)
		if err != nil {
			return err
		}
		ok, err := c.store.UpdateStage(ctx, cl.room.ID, models.StageWaitingMusic, models.StageWaitingReset)
		if err != nil {
			return err
		}
		if !ok {
			return rejectf("stage changed under reset")
		}
		cl.room.Stage = models.StageWaitingMusic
		c.answers.reset(cl.room.ID)

		c.broadcastQuizInfo(cl.room, users)
		c.emitRoom(users, cl.userID, protocol.EventQuizReset, req)
		return nil
	})
}
