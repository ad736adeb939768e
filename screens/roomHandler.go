package screens

import (
	"net/http"

	"mioserver/quiz"
	"mioserver/quiz/protocol"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RoomCreate は部屋と出題者を作成し、出題者の認証情報を返す
func RoomCreate(c *gin.Context, coord *quiz.Coordinator, logger *zap.Logger) {
	var request protocol.CreateRoomRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		logger.Info("Room create request bind error", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := protocol.Validate(&request); err != nil {
		logger.Info("Room create request validation error", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := coord.CreateRoom(c.Request.Context(), request)
	if err != nil {
		logger.Error("Failed to create room", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": protocol.ErrorInternal})
		return
	}
	c.JSON(http.StatusCreated, res)
}

// RoomExists reports whether the room in the path is still alive.
func RoomExists(c *gin.Context, coord *quiz.Coordinator, logger *zap.Logger) {
	request := protocol.RoomExistsRequest{RoomID: c.Param("roomID")}
	if err := protocol.Validate(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room id"})
		return
	}

	res, err := coord.RoomExists(c.Request.Context(), request.RoomID)
	if err != nil {
		logger.Error("Failed to look up room", zap.String("roomID", request.RoomID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": protocol.ErrorInternal})
		return
	}
	c.JSON(http.StatusOK, res)
}

type issueUIDBody struct {
	Name string `json:"name"`
}

// IssueUID は部屋に参加者を追加する。部屋が無ければ 404
func IssueUID(c *gin.Context, coord *quiz.Coordinator, logger *zap.Logger) {
	var body issueUIDBody
	if err := c.ShouldBindJSON(&body); err != nil {
		logger.Info("Issue uid request bind error", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	request := protocol.IssueUIDRequest{RoomID: c.Param("roomID"), Name: body.Name}
	if err := protocol.Validate(&request); err != nil {
		logger.Info("Issue uid request validation error", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := coord.IssueUID(c.Request.Context(), request)
	if err != nil {
		logger.Error("Failed to issue uid", zap.String("roomID", request.RoomID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": protocol.ErrorInternal})
		return
	}
	if res.UID == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ルームが見つかりません"})
		return
	}
	c.JSON(http.StatusCreated, res)
}
