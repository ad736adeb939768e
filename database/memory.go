package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"mioserver/models"
)

// MemoryStore keeps rooms and users in process memory.
// It is used with database.driver=memory and by tests.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*models.Room
	users map[string]*models.User
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]*models.Room),
		users: make(map[string]*models.User),
		now:   time.Now,
	}
}

// 呼び出し側に内部の値を触らせないためコピーを返す
func copyRoom(r *models.Room) *models.Room {
	c := *r
	c.Users = nil
	return &c
}

func copyUser(u *models.User) *models.User {
	c := *u
	if u.SocketID != nil {
		sid := *u.SocketID
		c.SocketID = &sid
	}
	return &c
}

func (s *MemoryStore) CreateRoom(_ context.Context, room *models.Room, master *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	room.CreatedAt, room.UpdatedAt = now, now
	if room.Round == 0 {
		room.Round = 1
	}
	master.RoomID = room.ID
	master.CreatedAt, master.UpdatedAt = now, now
	s.rooms[room.ID] = copyRoom(room)
	s.users[master.ID] = copyUser(master)
	return nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[user.RoomID]; !ok {
		return models.ErrRoomNotFound
	}
	now := s.now()
	// 同時刻に作られたユーザーの順序を保つ
	for _, u := range s.users {
		if u.RoomID == user.RoomID && !now.After(u.CreatedAt) {
			now = u.CreatedAt.Add(time.Nanosecond)
		}
	}
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	return copyRoom(r), nil
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *MemoryStore) ListUsers(_ context.Context, roomID string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0)
	for _, u := range s.users {
		if u.RoomID == roomID {
			users = append(users, *copyUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (s *MemoryStore) UpdateStage(_ context.Context, roomID string, to models.Stage, from ...models.Stage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return false, nil
	}
	if !hasStage(r.Stage, from) {
		return false, nil
	}
	r.Stage = to
	r.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) StartRound(_ context.Context, roomID string, to, from models.Stage) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok || r.Stage != from {
		return 0, false, nil
	}
	r.Stage = to
	r.Round++
	r.UpdatedAt = s.now()
	return r.Round, true, nil
}

func (s *MemoryStore) JudgeRound(_ context.Context, roomID string, deltas map[string]models.ScoreDelta, from ...models.Stage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok || !hasStage(r.Stage, from) {
		return false, nil
	}
	// 書き込む前に全員を確かめる
	for userID := range deltas {
		if u, ok := s.users[userID]; !ok || u.RoomID != roomID {
			return false, models.ErrUserNotFound
		}
	}
	now := s.now()
	for userID, delta := range deltas {
		u := s.users[userID]
		u.Apply(delta)
		u.UpdatedAt = now
	}
	r.Stage = models.StageWaitingReset
	r.UpdatedAt = now
	return true, nil
}

func hasStage(stage models.Stage, from []models.Stage) bool {
	for _, st := range from {
		if stage == st {
			return true
		}
	}
	return false
}

func (s *MemoryStore) UpdateAllotment(_ context.Context, roomID string, allotment models.Allotment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return models.ErrRoomNotFound
	}
	r.Allotment = allotment
	r.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) AddScore(_ context.Context, userID string, delta models.ScoreDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	u.Apply(delta)
	u.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) SetSocket(_ context.Context, userID, socketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	sid := socketID
	u.SocketID = &sid
	u.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ClearSocket(_ context.Context, userID, socketID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok || u.SocketID == nil || *u.SocketID != socketID {
		return false, nil
	}
	u.SocketID = nil
	u.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) AnyoneOnline(_ context.Context, roomID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.RoomID == roomID && u.SocketID != nil {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, u := range s.users {
		if u.RoomID == roomID {
			delete(s.users, id)
		}
	}
	delete(s.rooms, roomID)
	return nil
}

func (s *MemoryStore) ResetAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		r.Stage = models.StageWaitingMusic
	}
	for _, u := range s.users {
		u.SocketID = nil
	}
	return nil
}

func (s *MemoryStore) AbandonedRooms(_ context.Context, before time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	online := make(map[string]bool)
	for _, u := range s.users {
		if u.SocketID != nil {
			online[u.RoomID] = true
		}
	}
	var ids []string
	for id, r := range s.rooms {
		if r.UpdatedAt.Before(before) && !online[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
