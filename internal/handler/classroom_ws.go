package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/gateway"
)

// ClassroomWSHandler 강의실 WebSocket 핸들러
type ClassroomWSHandler struct {
	gateway *gateway.Gateway
}

// NewClassroomWSHandler ClassroomWSHandler 생성
func NewClassroomWSHandler(gw *gateway.Gateway) *ClassroomWSHandler {
	return &ClassroomWSHandler{gateway: gw}
}

// RequireUpgrade WebSocket 업그레이드 요청만 통과
func (h *ClassroomWSHandler) RequireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if c.Params("meetingId") == "" {
		return badRequest(c, "meeting id is required")
	}
	return c.Next()
}

// HandleWebSocket 연결 처리 (WebSocketAuthMiddleware 가 userID 를 저장한 뒤)
func (h *ClassroomWSHandler) HandleWebSocket(c *websocket.Conn) {
	userID, ok := c.Locals("userID").(int64)
	if !ok || userID <= 0 {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","code":"forbidden","message":"invalid session"}`))
		_ = c.Close()
		return
	}

	h.gateway.Serve(c, c.Params("meetingId"), userID)
}
