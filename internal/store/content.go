package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
)

// AppendChatMessage 채팅 메시지 추가, 공백뿐인 메시지는 ValidationError
func (s *Store) AppendChatMessage(ctx context.Context, meetingID string, userID int64, text string, parentID *int64) (*model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("message", "must not be empty")
	}
	text = s.truncate(text)

	msg := model.ChatMessage{
		MeetingID: meetingID,
		UserID:    &userID,
		Message:   text,
		ParentID:  parentID,
		CreatedAt: s.now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadMeeting(tx, meetingID); err != nil {
			return err
		}

		if parentID != nil {
			var count int64
			if err := tx.Model(&model.ChatMessage{}).
				Where("id = ? AND meeting_id = ?", *parentID, meetingID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("check parent message: %w", err)
			}
			if count == 0 {
				return apperr.Validation("parent_id", "parent message does not belong to this meeting")
			}
		}

		if err := tx.Omit(clause.Associations).Create(&msg).Error; err != nil {
			return fmt.Errorf("append chat message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// AppendSystemMessage 서버 공지 메시지 추가
func (s *Store) AppendSystemMessage(ctx context.Context, meetingID, text string) (*model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("message", "must not be empty")
	}

	msg := model.ChatMessage{
		MeetingID: meetingID,
		Message:   s.truncate(text),
		IsSystem:  true,
		CreatedAt: s.now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadMeeting(tx, meetingID); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(&msg).Error; err != nil {
			return fmt.Errorf("append system message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Store) truncate(text string) string {
	if utf8.RuneCountInString(text) <= s.maxChatLength {
		return text
	}
	return string([]rune(text)[:s.maxChatLength])
}

// ListChatMessages afterID 이후 메시지를 시간순으로 최대 limit 개
func (s *Store) ListChatMessages(ctx context.Context, meetingID string, afterID int64, limit int) ([]model.ChatMessage, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.loadMeeting(db, meetingID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	var messages []model.ChatMessage
	if err := db.Preload("User").
		Where("meeting_id = ? AND id > ?", meetingID, afterID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return messages, nil
}

// ReplaceWhiteboardSnapshot 화이트보드 스냅샷 덮어쓰기 (이력 없음)
func (s *Store) ReplaceWhiteboardSnapshot(ctx context.Context, meetingID, data string, editorUserID int64) (*model.WhiteboardSnapshot, error) {
	snapshot := model.WhiteboardSnapshot{
		MeetingID:      meetingID,
		Data:           data,
		LastModifiedBy: editorUserID,
		UpdatedAt:      s.now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadMeeting(tx, meetingID); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "meeting_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"data", "last_modified_by", "updated_at"}),
			}).
			Create(&snapshot).Error; err != nil {
			return fmt.Errorf("replace whiteboard snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// GetWhiteboardSnapshot 현재 화이트보드 스냅샷, 아직 없으면 NotFoundError("whiteboard")
func (s *Store) GetWhiteboardSnapshot(ctx context.Context, meetingID string) (*model.WhiteboardSnapshot, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.loadMeeting(db, meetingID); err != nil {
		return nil, err
	}

	var snapshot model.WhiteboardSnapshot
	err := db.Where("meeting_id = ?", meetingID).First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("whiteboard", meetingID)
	}
	if err != nil {
		return nil, fmt.Errorf("get whiteboard snapshot: %w", err)
	}
	return &snapshot, nil
}
