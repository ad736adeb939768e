package quiz

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// task は部屋のキューに積まれる1イベント分の処理
type task struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// roomQueue は1部屋分の直列キュー。refs が0になったら worker ごと消える
type roomQueue struct {
	tasks chan task
	refs  int
}

// Serializer runs functions keyed by room id one at a time, in arrival order.
// Different rooms run in parallel.
type Serializer struct {
	mu     sync.Mutex
	queues map[string]*roomQueue
	logger *zap.Logger
}

func NewSerializer(logger *zap.Logger) *Serializer {
	return &Serializer{
		queues: make(map[string]*roomQueue),
		logger: logger,
	}
}

// Do enqueues fn on the room's queue and waits for its result.
// If ctx ends while the queue is full, fn is never run. If it ends after fn was
// queued, Do returns ctx.Err() and fn is skipped unless it already started.
func (s *Serializer) Do(ctx context.Context, roomID string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q := s.acquire(roomID)
	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}

	// キューが満杯なら空くか ctx が終わるまで待つ
	select {
	case q.tasks <- t:
	case <-ctx.Done():
		// 積めなかった分の参照を返す
		if s.release(roomID, q) {
			close(q.tasks)
		}
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Serializer) acquire(roomID string) *roomQueue {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[roomID]
	if !ok {
		q = &roomQueue{tasks: make(chan task, 64)}
		s.queues[roomID] = q
		go s.run(roomID, q)
	}
	q.refs++
	return q
}

// release は1タスク分の参照を返し、最後の参照ならキューを閉じる
func (s *Serializer) release(roomID string, q *roomQueue) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	q.refs--
	if q.refs == 0 {
		delete(s.queues, roomID)
		return true
	}
	return false
}

func (s *Serializer) run(roomID string, q *roomQueue) {
	for t := range q.tasks {
		t.done <- s.execute(roomID, t)
		if s.release(roomID, q) {
			close(q.tasks)
		}
	}
}

// パニックしても部屋の順番は必ず解放する
func (s *Serializer) execute(roomID string, t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in room event", zap.String("roomID", roomID), zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("panic in room %s: %v", roomID, r)
		}
	}()
	if err := t.ctx.Err(); err != nil {
		return err
	}
	return t.fn(t.ctx)
}

// Len は動作中のキュー数 (テスト用)
func (s *Serializer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}
