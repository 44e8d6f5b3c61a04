package lifecycle

import (
	"context"
	"fmt"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
	"classroom-backend/internal/store"
)

// ChatResult 저장된 채팅과 보낸 사람
type ChatResult struct {
	Message *model.ChatMessage
	User    *model.User
}

// SendChat 채팅 권한 검사 후 저장
func (c *Controller) SendChat(ctx context.Context, meetingID string, userID int64, text string, parentID *int64) (*ChatResult, error) {
	s, err := c.subject(ctx, meetingID, userID, false)
	if err != nil {
		return nil, err
	}
	if err := CanChat(s); err != nil {
		return nil, err
	}

	msg, err := c.store.AppendChatMessage(ctx, meetingID, userID, text, parentID)
	if err != nil {
		return nil, err
	}
	return &ChatResult{Message: msg, User: s.User}, nil
}

// UpdateWhiteboard 화이트보드 수정 권한 검사 후 스냅샷 교체
func (c *Controller) UpdateWhiteboard(ctx context.Context, meetingID string, userID int64, data string) (*model.WhiteboardSnapshot, error) {
	s, err := c.subject(ctx, meetingID, userID, false)
	if err != nil {
		return nil, err
	}
	if err := CanUpdateWhiteboard(s); err != nil {
		return nil, err
	}
	return c.store.ReplaceWhiteboardSnapshot(ctx, meetingID, data, userID)
}

// ReadWhiteboard 현재 화이트보드 스냅샷 (접속 중인 참가자만)
func (c *Controller) ReadWhiteboard(ctx context.Context, meetingID string, userID int64) (*model.WhiteboardSnapshot, error) {
	s, err := c.subject(ctx, meetingID, userID, false)
	if err != nil {
		return nil, err
	}
	if err := CanReadWhiteboard(s); err != nil {
		return nil, err
	}
	return c.store.GetWhiteboardSnapshot(ctx, meetingID)
}

// SelfPatch 본인 상태 변경 (nil 필드는 유지)
type SelfPatch struct {
	RaiseHand    *bool
	IsMuted      *bool
	VideoEnabled *bool
}

// IsEmpty 변경할 필드가 없는지
func (p SelfPatch) IsEmpty() bool {
	return p.RaiseHand == nil && p.IsMuted == nil && p.VideoEnabled == nil
}

// UpdateSelf 음소거/비디오/손들기 변경, 본인만 가능
func (c *Controller) UpdateSelf(ctx context.Context, meetingID string, actorID, targetUserID int64, patch SelfPatch) (*model.Participant, error) {
	if patch.IsEmpty() {
		return nil, apperr.Validation("participant_update", "no fields to update")
	}

	s, err := c.subject(ctx, meetingID, actorID, false)
	if err != nil {
		return nil, err
	}
	if err := CanSelfUpdate(s, targetUserID); err != nil {
		return nil, err
	}

	return c.store.UpsertParticipant(ctx, meetingID, actorID, store.ParticipantPatch{
		RaiseHand:    patch.RaiseHand,
		IsMuted:      patch.IsMuted,
		VideoEnabled: patch.VideoEnabled,
	})
}

// ShareScreen 화면 공유 시작/중지
func (c *Controller) ShareScreen(ctx context.Context, meetingID string, userID int64, active bool) (*model.Participant, error) {
	s, err := c.subject(ctx, meetingID, userID, false)
	if err != nil {
		return nil, err
	}
	if err := CanScreenShare(s); err != nil {
		return nil, err
	}
	return c.store.UpsertParticipant(ctx, meetingID, userID, store.ParticipantPatch{
		ScreenSharing: store.Ptr(active),
	})
}

// CreateBreakoutRoom host/co-host 가 소회의실 생성, 생성자가 첫 멤버
func (c *Controller) CreateBreakoutRoom(ctx context.Context, meetingID string, actorID int64, name string) (*model.BreakoutRoom, error) {
	s, err := c.subject(ctx, meetingID, actorID, false)
	if err != nil {
		return nil, err
	}
	if err := CanManageBreakout(s); err != nil {
		return nil, err
	}

	room, err := c.store.CreateBreakoutRoom(ctx, meetingID, name, actorID)
	if err != nil {
		return nil, err
	}
	if _, err := c.store.AppendSystemMessage(ctx, meetingID, fmt.Sprintf("Breakout room %q created", room.Name)); err != nil {
		c.logger.Warn("breakout notice failed", "meeting_id", meetingID, "error", err)
	}
	return room, nil
}

// AddBreakoutMember host/co-host 가 참가자를 소회의실에 배정
func (c *Controller) AddBreakoutMember(ctx context.Context, meetingID string, actorID, roomID, userID int64) (*model.BreakoutRoom, error) {
	s, err := c.subject(ctx, meetingID, actorID, false)
	if err != nil {
		return nil, err
	}
	if err := CanManageBreakout(s); err != nil {
		return nil, err
	}
	if _, err := c.store.GetParticipant(ctx, meetingID, userID); err != nil {
		return nil, err
	}
	return c.store.AddBreakoutMember(ctx, meetingID, roomID, userID)
}

// EndBreakoutRoom host/co-host 가 소회의실 종료
func (c *Controller) EndBreakoutRoom(ctx context.Context, meetingID string, actorID, roomID int64) (*model.BreakoutRoom, error) {
	s, err := c.subject(ctx, meetingID, actorID, false)
	if err != nil {
		return nil, err
	}
	if !s.MeetingRole().IsHostLike() {
		return nil, apperr.Forbidden("manage breakout rooms", "host or co-host only")
	}
	return c.store.EndBreakoutRoom(ctx, meetingID, roomID)
}

// ListBreakoutRooms 소회의실 목록 (강사, 수강생, 관리자)
func (c *Controller) ListBreakoutRooms(ctx context.Context, meetingID string, actorID int64, activeOnly bool) ([]model.BreakoutRoom, error) {
	s, err := c.subject(ctx, meetingID, actorID, true)
	if err != nil {
		return nil, err
	}
	if err := CanView(s); err != nil {
		return nil, err
	}
	return c.store.ListBreakoutRooms(ctx, meetingID, activeOnly)
}

// SetParticipantRole 참가자 역할 변경 (host 또는 관리자)
func (c *Controller) SetParticipantRole(ctx context.Context, meetingID string, actorID, targetUserID int64, role model.MeetingRole) (*model.Participant, error) {
	if !role.Valid() {
		return nil, apperr.Validation("role", "must be one of host, co-host, participant")
	}

	s, err := c.subject(ctx, meetingID, actorID, false)
	if err != nil {
		return nil, err
	}
	if err := CanSetRole(s); err != nil {
		return nil, err
	}
	if _, err := c.store.GetParticipant(ctx, meetingID, targetUserID); err != nil {
		return nil, err
	}

	participant, err := c.store.UpsertParticipant(ctx, meetingID, targetUserID, store.ParticipantPatch{Role: store.Ptr(role)})
	if err != nil {
		return nil, err
	}
	c.logger.Info("participant role changed", "meeting_id", meetingID, "actor_id", actorID, "user_id", targetUserID, "role", role)
	return participant, nil
}

// ListParticipants 참가자 스냅샷 (강사, 수강생, 관리자)
func (c *Controller) ListParticipants(ctx context.Context, meetingID string, actorID int64, presentOnly bool) ([]model.Participant, error) {
	s, err := c.subject(ctx, meetingID, actorID, true)
	if err != nil {
		return nil, err
	}
	if err := CanView(s); err != nil {
		return nil, err
	}
	return c.store.ListParticipants(ctx, meetingID, presentOnly)
}

// ChatHistory 채팅 스냅샷 (강사, 수강생, 관리자)
func (c *Controller) ChatHistory(ctx context.Context, meetingID string, actorID, afterID int64, limit int) ([]model.ChatMessage, error) {
	s, err := c.subject(ctx, meetingID, actorID, true)
	if err != nil {
		return nil, err
	}
	if err := CanView(s); err != nil {
		return nil, err
	}
	return c.store.ListChatMessages(ctx, meetingID, afterID, limit)
}
