package gateway

import (
	"bytes"
	"encoding/json"
	"time"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
)

// 메시지 타입
const (
	TypeJoin              = "join"
	TypeChatMessage       = "chat_message"
	TypeWhiteboardUpdate  = "whiteboard_update"
	TypeParticipantUpdate = "participant_update"
	TypeScreenShare       = "screen_share"

	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeChatAck           = "chat_ack"
	TypeMeetingEnded      = "meeting_ended"
	TypeBreakoutCreated   = "breakout_created"
	TypeError             = "error"
)

// =============================================================================
// Inbound
// =============================================================================

// inbound 클라이언트 → 서버 메시지
type inbound interface {
	messageType() string
}

type joinMessage struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Secret   string `json:"secret,omitempty"`
}

type chatMessage struct {
	Message  string `json:"message"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

type whiteboardUpdate struct {
	Data   json.RawMessage `json:"data"`
	UserID int64           `json:"user_id"`
}

type participantUpdate struct {
	UserID       int64 `json:"user_id"`
	RaiseHand    *bool `json:"raise_hand,omitempty"`
	IsMuted      *bool `json:"is_muted,omitempty"`
	VideoEnabled *bool `json:"video_enabled,omitempty"`
}

type screenShare struct {
	UserID int64 `json:"user_id"`
	Active *bool `json:"active"`
}

func (*joinMessage) messageType() string       { return TypeJoin }
func (*chatMessage) messageType() string       { return TypeChatMessage }
func (*whiteboardUpdate) messageType() string  { return TypeWhiteboardUpdate }
func (*participantUpdate) messageType() string { return TypeParticipantUpdate }
func (*screenShare) messageType() string       { return TypeScreenShare }

// decodeInbound type 태그를 먼저 읽고 해당 구조체로 디코딩, 모르는 타입은 (nil, tag, nil)
func decodeInbound(data []byte) (inbound, string, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, "", apperr.Validation("envelope", "malformed JSON")
	}

	var msg inbound
	switch tag.Type {
	case TypeJoin:
		msg = &joinMessage{}
	case TypeChatMessage:
		msg = &chatMessage{}
	case TypeWhiteboardUpdate:
		msg = &whiteboardUpdate{}
	case TypeParticipantUpdate:
		msg = &participantUpdate{}
	case TypeScreenShare:
		msg = &screenShare{}
	default:
		return nil, tag.Type, nil
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, tag.Type, apperr.Validation(tag.Type, "malformed payload")
	}
	return msg, tag.Type, nil
}

// hasData null/빈 값이 아닌 화이트보드 데이터인지
func (m *whiteboardUpdate) hasData() bool {
	trimmed := bytes.TrimSpace(m.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// =============================================================================
// Outbound
// =============================================================================

// ParticipantJoinedEvent 입장 알림
type ParticipantJoinedEvent struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// ParticipantLeftEvent 퇴장 알림
type ParticipantLeftEvent struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
}

// ChatMessageEvent 채팅 브로드캐스트
type ChatMessageEvent struct {
	Type      string `json:"type"`
	ID        int64  `json:"id"`
	Message   string `json:"message"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	ParentID  *int64 `json:"parent_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// WhiteboardUpdateEvent 화이트보드 브로드캐스트 (data 는 그대로 전달)
type WhiteboardUpdateEvent struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	UserID int64           `json:"user_id"`
}

// ParticipantUpdateEvent 참가자 상태 변경, 바뀐 필드만 포함
type ParticipantUpdateEvent struct {
	Type         string `json:"type"`
	UserID       int64  `json:"user_id"`
	RaiseHand    *bool  `json:"raise_hand,omitempty"`
	IsMuted      *bool  `json:"is_muted,omitempty"`
	VideoEnabled *bool  `json:"video_enabled,omitempty"`
	Role         string `json:"role,omitempty"`
}

// ScreenShareEvent 화면 공유 시작/중지
type ScreenShareEvent struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
	Active bool   `json:"active"`
}

// MeetingEndedEvent 미팅 종료 알림
type MeetingEndedEvent struct {
	Type      string `json:"type"`
	MeetingID string `json:"meeting_id"`
}

// BreakoutCreatedEvent 소회의실 생성 알림
type BreakoutCreatedEvent struct {
	Type string              `json:"type"`
	Room *model.BreakoutRoom `json:"room"`
}

// ErrorEvent 요청한 연결에만 보내는 오류
type ErrorEvent struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	RequestType string `json:"request_type,omitempty"`
}

// ParticipantJoined 입장 이벤트 생성
func ParticipantJoined(user *model.User) ParticipantJoinedEvent {
	return ParticipantJoinedEvent{Type: TypeParticipantJoined, UserID: user.ID, Username: user.Name()}
}

// ParticipantLeft 퇴장 이벤트 생성
func ParticipantLeft(userID int64) ParticipantLeftEvent {
	return ParticipantLeftEvent{Type: TypeParticipantLeft, UserID: userID}
}

// ChatMessageFrom 저장된 채팅으로 이벤트 생성
func ChatMessageFrom(msg *model.ChatMessage, user *model.User) ChatMessageEvent {
	event := ChatMessageEvent{
		Type:      TypeChatMessage,
		ID:        msg.ID,
		Message:   msg.Message,
		ParentID:  msg.ParentID,
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if user != nil {
		event.UserID = user.ID
		event.Username = user.Name()
	}
	return event
}

// ChatAck 보낸 사람에게만 가는 저장 확인 (id/시각 포함)
func ChatAck(msg *model.ChatMessage, user *model.User) ChatMessageEvent {
	event := ChatMessageFrom(msg, user)
	event.Type = TypeChatAck
	return event
}

// WhiteboardUpdated 화이트보드 이벤트 생성
func WhiteboardUpdated(snapshot *model.WhiteboardSnapshot) WhiteboardUpdateEvent {
	return WhiteboardUpdateEvent{
		Type:   TypeWhiteboardUpdate,
		Data:   json.RawMessage(snapshot.Data),
		UserID: snapshot.LastModifiedBy,
	}
}

// RoleChanged 역할 변경 이벤트 생성
func RoleChanged(userID int64, role model.MeetingRole) ParticipantUpdateEvent {
	return ParticipantUpdateEvent{Type: TypeParticipantUpdate, UserID: userID, Role: role.String()}
}

// ScreenShared 화면 공유 이벤트 생성
func ScreenShared(userID int64, active bool) ScreenShareEvent {
	return ScreenShareEvent{Type: TypeScreenShare, UserID: userID, Active: active}
}

// MeetingEnded 종료 이벤트 생성
func MeetingEnded(meetingID string) MeetingEndedEvent {
	return MeetingEndedEvent{Type: TypeMeetingEnded, MeetingID: meetingID}
}

// BreakoutCreated 소회의실 생성 이벤트
func BreakoutCreated(room *model.BreakoutRoom) BreakoutCreatedEvent {
	return BreakoutCreatedEvent{Type: TypeBreakoutCreated, Room: room}
}

// errorFrame 오류 이벤트 생성
func errorFrame(requestType string, err error) ErrorEvent {
	return ErrorEvent{
		Type:        TypeError,
		Code:        apperr.Code(err),
		Message:     err.Error(),
		RequestType: requestType,
	}
}
