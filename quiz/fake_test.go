package quiz

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mioserver/auth"
	"mioserver/database"
	"mioserver/models"
	"mioserver/quiz/protocol"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errSocketClosed = errors.New("socket closed")

// fakeSocket は送られたフレームを記録する
type fakeSocket struct {
	id     string
	mu     sync.Mutex
	out    []protocol.Outbound
	closed bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{id: uuid.NewString()}
}

func (s *fakeSocket) ID() string { return s.id }

func (s *fakeSocket) Send(msg protocol.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSocketClosed
	}
	s.out = append(s.out, msg)
	return nil
}

func (s *fakeSocket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) events(typ string) []protocol.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []protocol.Outbound
	for _, m := range s.out {
		if m.Type == typ {
			res = append(res, m)
		}
	}
	return res
}

func (s *fakeSocket) last(t *testing.T, typ string) protocol.Outbound {
	t.Helper()
	evs := s.events(typ)
	require.NotEmpty(t, evs, "no %s event on socket", typ)
	return evs[len(evs)-1]
}

func (s *fakeSocket) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = nil
}

var errStoreDown = errors.New("database unavailable")

// failingStore は failNext で指定した回数だけストアのメソッドを失敗させる
type failingStore struct {
	*database.MemoryStore
	mu       sync.Mutex
	failures map[string]int
}

func newFailingStore() *failingStore {
	return &failingStore{MemoryStore: database.NewMemoryStore(), failures: make(map[string]int)}
}

func (s *failingStore) failNext(method string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = n
}

func (s *failingStore) injected(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[method] > 0 {
		s.failures[method]--
		return errStoreDown
	}
	return nil
}

func (s *failingStore) ListUsers(ctx context.Context, roomID string) ([]models.User, error) {
	if err := s.injected("ListUsers"); err != nil {
		return nil, err
	}
	return s.MemoryStore.ListUsers(ctx, roomID)
}

func (s *failingStore) StartRound(ctx context.Context, roomID string, to, from models.Stage) (int, bool, error) {
	if err := s.injected("StartRound"); err != nil {
		return 0, false, err
	}
	return s.MemoryStore.StartRound(ctx, roomID, to, from)
}

func (s *failingStore) JudgeRound(ctx context.Context, roomID string, deltas map[string]models.ScoreDelta, from ...models.Stage) (bool, error) {
	if err := s.injected("JudgeRound"); err != nil {
		return false, err
	}
	return s.MemoryStore.JudgeRound(ctx, roomID, deltas, from...)
}

// fakeSessions is an in-memory SessionCache.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string][2]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string][2]string)}
}

func (f *fakeSessions) has(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[sessionID]
	return ok
}

func (f *fakeSessions) Issue(_ context.Context, userID, roomID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.sessions[id] = [2]string{userID, roomID}
	return id, nil
}

func (f *fakeSessions) Lookup(_ context.Context, sessionID string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return "", "", nil
	}
	return s[0], s[1], nil
}

func (f *fakeSessions) Resolve(_ context.Context, sessionID string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return "", "", nil
	}
	delete(f.sessions, sessionID)
	return s[0], s[1], nil
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *database.MemoryStore
	c     *Coordinator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	return newFixtureWithStore(t, database.NewMemoryStore(), opts...)
}

func newFixtureWithStore(t *testing.T, store Store, opts ...Option) *fixture {
	issuer, err := auth.NewIssuer("test-secret")
	require.NoError(t, err)
	f := &fixture{
		t:   t,
		ctx: context.Background(),
		c:   New(store, issuer, zaptest.NewLogger(t), opts...),
	}
	switch s := store.(type) {
	case *database.MemoryStore:
		f.store = s
	case *failingStore:
		f.store = s.MemoryStore
	}
	return f
}

// participant は認証済みの参加者
type participant struct {
	uid      string
	password string
	sock     *fakeSocket
}

func (f *fixture) createRoom(correct, wrong int) (string, *participant) {
	f.t.Helper()
	res, err := f.c.CreateRoom(f.ctx, protocol.CreateRoomRequest{MasterName: "master", CorrectPoints: correct, WrongPoints: wrong})
	require.NoError(f.t, err)
	m := &participant{uid: res.UID, password: res.Password}
	f.connect(res.RoomID, m)
	return res.RoomID, m
}

func (f *fixture) join(roomID, name string) *participant {
	f.t.Helper()
	res, err := f.c.IssueUID(f.ctx, protocol.IssueUIDRequest{RoomID: roomID, Name: name})
	require.NoError(f.t, err)
	require.NotNil(f.t, res.UID)
	m := &participant{uid: *res.UID, password: *res.Password}
	f.connect(roomID, m)
	return m
}

// connect は新しいソケットで認証する
func (f *fixture) connect(roomID string, m *participant) protocol.AuthResult {
	f.t.Helper()
	m.sock = newFakeSocket()
	f.c.Connect(m.sock)
	res, err := f.c.Authenticate(f.ctx, m.sock, protocol.AuthRequest{UID: m.uid, Password: m.password, RoomID: roomID})
	require.NoError(f.t, err)
	require.Equal(f.t, protocol.StatusOK, res.Status)
	return res
}

func (f *fixture) room(roomID string) *models.Room {
	f.t.Helper()
	room, err := f.store.GetRoom(f.ctx, roomID)
	require.NoError(f.t, err)
	return room
}

func (f *fixture) user(userID string) *models.User {
	f.t.Helper()
	u, err := f.store.GetUser(f.ctx, userID)
	require.NoError(f.t, err)
	return u
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func clearAll(ms ...*participant) {
	for _, m := range ms {
		m.sock.clear()
	}
}
