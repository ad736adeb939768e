package screens

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mioserver/auth"
	"mioserver/database"
	"mioserver/quiz"
	"mioserver/quiz/protocol"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	logger := zaptest.NewLogger(t)
	issuer, err := auth.NewIssuer("test-secret")
	require.NoError(t, err)
	coord := quiz.New(database.NewMemoryStore(), issuer, logger)

	server := gin.New()
	server.POST("/rooms", func(c *gin.Context) { RoomCreate(c, coord, logger) })
	server.GET("/rooms/:roomID", func(c *gin.Context) { RoomExists(c, coord, logger) })
	server.POST("/rooms/:roomID/users", func(c *gin.Context) { IssueUID(c, coord, logger) })
	return server
}

func do(server *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	server.ServeHTTP(res, req)
	return res
}

func createRoom(t *testing.T, server *gin.Engine) protocol.CreateRoomResponse {
	t.Helper()
	res := do(server, http.MethodPost, "/rooms", `{"masterName":"Mio","correctPoints":10,"wrongPoints":-5}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var created protocol.CreateRoomResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	return created
}

func TestRoomCreate(t *testing.T) {
	testCases := []struct {
		description  string
		body         string
		expectedCode int
	}{
		{"valid", `{"masterName":"Mio","correctPoints":10,"wrongPoints":-5}`, http.StatusCreated},
		{"missing master name", `{"correctPoints":10}`, http.StatusBadRequest},
		{"blank master name", `{"masterName":"   "}`, http.StatusBadRequest},
		{"broken json", `{"masterName":`, http.StatusBadRequest},
		{"points out of range", `{"masterName":"Mio","correctPoints":1000000}`, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			server := newRouter(t)
			res := do(server, http.MethodPost, "/rooms", tc.body)
			assert.Equal(t, tc.expectedCode, res.Code)

			if tc.expectedCode == http.StatusCreated {
				var created protocol.CreateRoomResponse
				require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
				assert.NotEmpty(t, created.RoomID)
				assert.NotEmpty(t, created.UID)
				assert.NotEmpty(t, created.Password)
			}
		})
	}
}

func TestRoomExists(t *testing.T) {
	server := newRouter(t)
	created := createRoom(t, server)

	res := do(server, http.MethodGet, "/rooms/"+created.RoomID, "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"exists":true}`, res.Body.String())

	res = do(server, http.MethodGet, "/rooms/unknown-room", "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"exists":false}`, res.Body.String())
}

func TestIssueUID(t *testing.T) {
	server := newRouter(t)
	created := createRoom(t, server)

	res := do(server, http.MethodPost, "/rooms/"+created.RoomID+"/users", `{"name":"Alice"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var issued protocol.IssueUIDResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &issued))
	require.NotNil(t, issued.UID)
	require.NotNil(t, issued.Password)
	assert.NotEqual(t, created.UID, *issued.UID)

	res = do(server, http.MethodPost, "/rooms/"+created.RoomID+"/users", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = do(server, http.MethodPost, "/rooms/6f1c1f5e-3b8a-4f1e-9d55-0a2b7c3d4e5f/users", `{"name":"Bob"}`)
	assert.Equal(t, http.StatusNotFound, res.Code)
}
