package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/auth"
	"classroom-backend/internal/gateway"
	"classroom-backend/internal/lifecycle"
	"classroom-backend/internal/model"
)

// Notifier 연결된 클라이언트에 이벤트 전달 (gateway.Gateway 가 구현)
type Notifier interface {
	Notify(meetingID string, event any) int
	CloseMeeting(meetingID string) int
}

// OnlineLister 실시간 접속자 조회 (presence.Manager 가 구현)
type OnlineLister interface {
	Online(ctx context.Context, meetingID string) (map[int64]bool, error)
}

// MeetingHandler 강의실 미팅 HTTP 핸들러
type MeetingHandler struct {
	controller      *lifecycle.Controller
	notifier        Notifier
	presence        OnlineLister
	defaultCapacity int
	logger          *slog.Logger
}

// NewMeetingHandler MeetingHandler 생성, presence 는 nil 가능
func NewMeetingHandler(controller *lifecycle.Controller, notifier Notifier, presence OnlineLister, defaultCapacity int, logger *slog.Logger) *MeetingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MeetingHandler{
		controller:      controller,
		notifier:        notifier,
		presence:        presence,
		defaultCapacity: defaultCapacity,
		logger:          logger.With("component", "meeting_handler"),
	}
}

// MeetingResponse 미팅 응답
type MeetingResponse struct {
	ID                 string  `json:"id"`
	ClassroomID        int64   `json:"classroom_id"`
	Title              string  `json:"title"`
	Status             string  `json:"status"`
	ScheduledStart     *string `json:"scheduled_start,omitempty"`
	ScheduledEnd       *string `json:"scheduled_end,omitempty"`
	ActualStart        *string `json:"actual_start,omitempty"`
	ActualEnd          *string `json:"actual_end,omitempty"`
	RequiresSecret     bool    `json:"requires_secret"`
	Capacity           int     `json:"capacity"`
	WhiteboardEnabled  bool    `json:"whiteboard_enabled"`
	ChatEnabled        bool    `json:"chat_enabled"`
	ScreenShareEnabled bool    `json:"screen_share_enabled"`
	CreatedAt          string  `json:"created_at"`
}

// ParticipantResponse 참가자 응답
type ParticipantResponse struct {
	UserID        int64   `json:"user_id"`
	Username      string  `json:"username"`
	Role          string  `json:"role"`
	IsPresent     bool    `json:"is_present"`
	Online        *bool   `json:"online,omitempty"` // presence 미러가 켜져 있을 때만
	JoinTime      *string `json:"join_time,omitempty"`
	LeaveTime     *string `json:"leave_time,omitempty"`
	RaiseHand     bool    `json:"raise_hand"`
	IsMuted       bool    `json:"is_muted"`
	VideoEnabled  bool    `json:"video_enabled"`
	ScreenSharing bool    `json:"screen_sharing"`
}

// ChatMessageResponse 채팅 응답
type ChatMessageResponse struct {
	ID        int64  `json:"id"`
	UserID    *int64 `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Message   string `json:"message"`
	ParentID  *int64 `json:"parent_id,omitempty"`
	IsSystem  bool   `json:"is_system"`
	CreatedAt string `json:"created_at"`
}

// CreateMeetingRequest 미팅 생성 요청
type CreateMeetingRequest struct {
	Title              string     `json:"title" validate:"omitempty,max=200"`
	ScheduledStart     *time.Time `json:"scheduled_start"`
	ScheduledEnd       *time.Time `json:"scheduled_end"`
	AccessSecret       string     `json:"access_secret" validate:"omitempty,min=4,max=72"`
	Capacity           *int       `json:"capacity" validate:"omitempty,gte=0,lte=10000"`
	WhiteboardEnabled  *bool      `json:"whiteboard_enabled"`
	ChatEnabled        *bool      `json:"chat_enabled"`
	ScreenShareEnabled *bool      `json:"screen_share_enabled"`
}

// JoinRequest 입장 가능 여부 확인 요청
type JoinRequest struct {
	Secret string `json:"secret" validate:"omitempty,max=72"`
}

// CreateBreakoutRoomRequest 소회의실 생성 요청
type CreateBreakoutRoomRequest struct {
	Name string `json:"name" validate:"required,notblank,max=100"`
}

// SetRoleRequest 역할 변경 요청
type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=host co-host participant"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func toMeetingResponse(m *model.Meeting) MeetingResponse {
	return MeetingResponse{
		ID:                 m.ID,
		ClassroomID:        m.ClassroomID,
		Title:              m.Title,
		Status:             m.Status.String(),
		ScheduledStart:     formatTime(m.ScheduledStart),
		ScheduledEnd:       formatTime(m.ScheduledEnd),
		ActualStart:        formatTime(m.ActualStart),
		ActualEnd:          formatTime(m.ActualEnd),
		RequiresSecret:     m.RequiresSecret(),
		Capacity:           m.Capacity,
		WhiteboardEnabled:  m.WhiteboardEnabled,
		ChatEnabled:        m.ChatEnabled,
		ScreenShareEnabled: m.ScreenShareEnabled,
		CreatedAt:          m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toParticipantResponse(p *model.Participant) ParticipantResponse {
	resp := ParticipantResponse{
		UserID:        p.UserID,
		Role:          p.Role.String(),
		IsPresent:     p.IsPresent,
		JoinTime:      formatTime(p.JoinTime),
		LeaveTime:     formatTime(p.LeaveTime),
		RaiseHand:     p.RaiseHand,
		IsMuted:       p.IsMuted,
		VideoEnabled:  p.VideoEnabled,
		ScreenSharing: p.ScreenSharing,
	}
	if p.User != nil {
		resp.Username = p.User.Name()
	}
	return resp
}

func toChatMessageResponse(m *model.ChatMessage) ChatMessageResponse {
	resp := ChatMessageResponse{
		ID:        m.ID,
		UserID:    m.UserID,
		Message:   m.Message,
		ParentID:  m.ParentID,
		IsSystem:  m.IsSystem,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if m.User != nil {
		resp.Username = m.User.Name()
	}
	return resp
}

// CreateMeeting POST /api/classrooms/:classroomId/meeting
func (h *MeetingHandler) CreateMeeting(c *fiber.Ctx) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return actorMissing(c)
	}
	classroomID, err := strconv.ParseInt(c.Params("classroomId"), 10, 64)
	if err != nil || classroomID <= 0 {
		return badRequest(c, "invalid classroom id")
	}

	var req CreateMeetingRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	settings := lifecycle.MeetingSpec{
		Title:              req.Title,
		ScheduledStart:     req.ScheduledStart,
		ScheduledEnd:       req.ScheduledEnd,
		AccessSecret:       req.AccessSecret,
		Capacity:           h.defaultCapacity,
		WhiteboardEnabled:  boolOr(req.WhiteboardEnabled, true),
		ChatEnabled:        boolOr(req.ChatEnabled, true),
		ScreenShareEnabled: boolOr(req.ScreenShareEnabled, true),
	}
	if req.Capacity != nil {
		settings.Capacity = *req.Capacity
	}

	meeting, err := h.controller.CreateMeeting(c.UserContext(), userID, classroomID, settings)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toMeetingResponse(meeting))
}

// GetMeeting GET /api/meetings/:meetingId
func (h *MeetingHandler) GetMeeting(c *fiber.Ctx) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return actorMissing(c)
	}

	meeting, err := h.controller.Meeting(c.UserContext(), c.Params("meetingId"), userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(toMeetingResponse(meeting))
}

// Join POST /api/meetings/:meetingId/join
//
// 부수 효과 없이 입장 가능 여부만 확인한다. 실제 입장은 WebSocket join 메시지로 한다.
func (h *MeetingHandler) Join(c *fiber.Ctx) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return actorMissing(c)
	}

	var req JoinRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	meetingID := c.Params("meetingId")
	subject, err := h.controller.CheckJoin(c.UserContext(), meetingID, userID, req.Secret)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	role := model.MeetingRoleParticipant
	if subject.Participant != nil {
		role = subject.Participant.Role
	} else if subject.IsTrainer() {
		role = model.MeetingRoleHost
	}

	return c.JSON(fiber.Map{
		"can_join": true,
		"meeting":  toMeetingResponse(subject.Meeting),
		"role":     role.String(),
		"ws_path":  "/ws/classroom/" + meetingID,
	})
}

// End POST /api/meetings/:meetingId/end
func (h *MeetingHandler) End(c *fiber.Ctx) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return actorMissing(c)
	}

	meetingID := c.Params("meetingId")
	result, err := h.controller.End(c.UserContext(), meetingID, userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	if h.notifier != nil {
		h.notifier.Notify(meetingID, gateway.MeetingEnded(meetingID))
		closed := h.notifier.CloseMeeting(meetingID)
		h.logger.Info("🛑 meeting ended", "meeting_id", meetingID, "actor_id", userID, "flushed", result.Flushed, "connections_closed", closed)
	}

	return c.JSON(fiber.Map{
		"meeting": toMeetingResponse(result.Meeting),
		"flushed": result.Flushed,
	})
}

// Cancel POST /api/meetings/:meetingId/cancel
func (h *MeetingHandler) Cancel(c *fiber.Ctx) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return actorMissing(c)
	}

	meeting, err := h.controller.Cancel(c.UserContext(), c.Params("meetingId"), userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(toMeetingResponse(meeting))
}

// ChatHistory GET /api/meetings/:meetingId/chat?after=&limit=
func (h *MeetingHandler) ChatHistory(c *fiber.Ctx) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return actorMissing(c)
	}

	after := int64(c.QueryInt("after", 0))
	limit := c.QueryInt("limit", 50)
	if after < 0 || limit < 0 {
		return badRequest(c, "after and limit must not be negative")
	}

	messages, err := h.controller.ChatHistory(c.UserContext(), c.Params("meetingId"), userID, after, limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	responses := make([]ChatMessageResponse, len(messages))
	for i := range messages {
		responses[i] = toChatMessageResponse(&messages[i])
	}
	return c.JSON(fiber.Map{
		"messages": responses,
		"total":    len(responses),
	})
}

// Participants GET /api/meetings/:meetingId/participants?present=
func (h *MeetingHandler) Participants(c *fiber.Ctx) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return actorMissing(c)
	}

	meetingID := c.Params("meetingId")
	participants, err := h.controller.ListParticipants(c.UserContext(), meetingID, userID, c.QueryBool("present", false))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	var online map[int64]bool
	if h.presence != nil {
		if online, err = h.presence.Online(c.UserContext(), meetingID); err != nil {
			h.logger.Warn("presence lookup failed", "meeting_id", meetingID, "error", err)
			online = nil
		}
	}

	responses := make([]ParticipantResponse, len(participants))
	for i := range participants {
		responses[i] = toParticipantResponse(&participants[i])
		if online != nil {
			v := online[participants[i].UserID]
			responses[i].Online = &v
		}
	}
	return c.JSON(fiber.Map{
		"participants": responses,
		"total":        len(responses),
	})
}

// Whiteboard GET /api/meetings/:meetingId/whiteboard
func (h *MeetingHandler) Whiteboard(c *fiber.Ctx) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return actorMissing(c)
	}

	snapshot, err := h.controller.ReadWhiteboard(c.UserContext(), c.Params("meetingId"), userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"meeting_id":       snapshot.MeetingID,
		"data":             json.RawMessage(snapshot.Data),
		"last_modified_by": snapshot.LastModifiedBy,
		"updated_at":       snapshot.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// CreateBreakoutRoom POST /api/meetings/:meetingId/breakout-rooms
func (h *MeetingHandler) CreateBreakoutRoom(c *fiber.Ctx) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return actorMissing(c)
	}

	var req CreateBreakoutRoomRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	meetingID := c.Params("meetingId")
	room, err := h.controller.CreateBreakoutRoom(c.UserContext(), meetingID, userID, req.Name)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if h.notifier != nil {
		h.notifier.Notify(meetingID, gateway.BreakoutCreated(room))
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

// EndBreakoutRoom POST /api/meetings/:meetingId/breakout-rooms/:roomId/end
func (h *MeetingHandler) EndBreakoutRoom(c *fiber.Ctx) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return actorMissing(c)
	}
	roomID, err := strconv.ParseInt(c.Params("roomId"), 10, 64)
	if err != nil || roomID <= 0 {
		return badRequest(c, "invalid breakout room id")
	}

	room, err := h.controller.EndBreakoutRoom(c.UserContext(), c.Params("meetingId"), userID, roomID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(room)
}

// BreakoutRooms GET /api/meetings/:meetingId/breakout-rooms?active=
func (h *MeetingHandler) BreakoutRooms(c *fiber.Ctx) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return actorMissing(c)
	}

	rooms, err := h.controller.ListBreakoutRooms(c.UserContext(), c.Params("meetingId"), userID, c.QueryBool("active", false))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"breakout_rooms": rooms,
		"total":          len(rooms),
	})
}

// SetParticipantRole PUT /api/meetings/:meetingId/participants/:userId/role
func (h *MeetingHandler) SetParticipantRole(c *fiber.Ctx) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return actorMissing(c)
	}
	targetID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || targetID <= 0 {
		return badRequest(c, "invalid user id")
	}

	var req SetRoleRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	meetingID := c.Params("meetingId")
	participant, err := h.controller.SetParticipantRole(c.UserContext(), meetingID, userID, targetID, model.MeetingRole(req.Role))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if h.notifier != nil {
		h.notifier.Notify(meetingID, gateway.RoleChanged(targetID, participant.Role))
	}
	return c.JSON(toParticipantResponse(participant))
}

func actorMissing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
