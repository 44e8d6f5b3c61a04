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

const maxBreakoutNameLength = 100

// CreateBreakoutRoom 소회의실 생성, host 가 첫 멤버로 추가된다
func (s *Store) CreateBreakoutRoom(ctx context.Context, meetingID, name string, hostUserID int64) (*model.BreakoutRoom, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name", "must not be empty")
	}
	if utf8.RuneCountInString(name) > maxBreakoutNameLength {
		return nil, apperr.Validation("name", fmt.Sprintf("must be at most %d characters", maxBreakoutNameLength))
	}

	now := s.now()
	room := model.BreakoutRoom{
		MeetingID: meetingID,
		Name:      name,
		HostID:    hostUserID,
		CreatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadMeeting(tx, meetingID); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(&room).Error; err != nil {
			return fmt.Errorf("create breakout room: %w", err)
		}

		host := model.BreakoutMember{BreakoutRoomID: room.ID, UserID: hostUserID, JoinedAt: now}
		if err := tx.Create(&host).Error; err != nil {
			return fmt.Errorf("add breakout host: %w", err)
		}
		room.Members = []model.BreakoutMember{host}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Store) loadBreakoutRoom(tx *gorm.DB, meetingID string, roomID int64) (*model.BreakoutRoom, error) {
	if _, err := s.loadMeeting(tx, meetingID); err != nil {
		return nil, err
	}

	var room model.BreakoutRoom
	err := tx.Where("id = ? AND meeting_id = ?", roomID, meetingID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("breakout room", roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("load breakout room: %w", err)
	}
	return &room, nil
}

// AddBreakoutMember 소회의실에 멤버 추가 (이미 있으면 무시)
func (s *Store) AddBreakoutMember(ctx context.Context, meetingID string, roomID, userID int64) (*model.BreakoutRoom, error) {
	var room *model.BreakoutRoom
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		room, err = s.loadBreakoutRoom(tx, meetingID, roomID)
		if err != nil {
			return err
		}
		if room.EndedAt != nil {
			return apperr.Validation("breakout_room", "breakout room has ended")
		}

		member := model.BreakoutMember{BreakoutRoomID: roomID, UserID: userID, JoinedAt: s.now()}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "breakout_room_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&member).Error; err != nil {
			return fmt.Errorf("add breakout member: %w", err)
		}
		return tx.Where("breakout_room_id = ?", roomID).Order("id ASC").Find(&room.Members).Error
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// EndBreakoutRoom 소회의실 종료 (ended_at 만 기록, 삭제하지 않음)
func (s *Store) EndBreakoutRoom(ctx context.Context, meetingID string, roomID int64) (*model.BreakoutRoom, error) {
	var room *model.BreakoutRoom
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		room, err = s.loadBreakoutRoom(tx, meetingID, roomID)
		if err != nil {
			return err
		}
		if room.EndedAt != nil {
			return nil
		}

		now := s.now()
		if err := tx.Model(&model.BreakoutRoom{}).
			Where("id = ? AND ended_at IS NULL", roomID).
			Update("ended_at", now).Error; err != nil {
			return fmt.Errorf("end breakout room: %w", err)
		}
		room.EndedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// ListBreakoutRooms 소회의실 목록 (activeOnly 면 종료되지 않은 것만)
func (s *Store) ListBreakoutRooms(ctx context.Context, meetingID string, activeOnly bool) ([]model.BreakoutRoom, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.loadMeeting(db, meetingID); err != nil {
		return nil, err
	}

	query := db.Preload("Members", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Where("meeting_id = ?", meetingID)
	if activeOnly {
		query = query.Where("ended_at IS NULL")
	}

	var rooms []model.BreakoutRoom
	if err := query.Order("id ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("list breakout rooms: %w", err)
	}
	return rooms, nil
}
