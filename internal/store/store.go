// Package store 미팅 단위 영속 상태 (참가자, 채팅, 화이트보드, 소회의실)
//
// 모든 작업은 meeting id 기준이며 미팅이 없으면 apperr.NotFoundError 를 반환한다.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
)

// Store GORM 기반 세션 저장소
type Store struct {
	db            *gorm.DB
	maxChatLength int
	now           func() time.Time
}

// Option Store 옵션
type Option func(*Store)

// WithMaxChatLength 채팅 최대 길이 (rune 단위, 초과분은 잘림)
func WithMaxChatLength(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxChatLength = n
		}
	}
}

// WithClock 시간 함수 교체 (테스트용)
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New Store 생성
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:            db,
		maxChatLength: 2000,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now 저장소 기준 현재 시각
func (s *Store) Now() time.Time {
	return s.now()
}

// Ptr 부분 업데이트용 포인터 헬퍼
func Ptr[T any](v T) *T {
	return &v
}

func (s *Store) loadMeeting(tx *gorm.DB, meetingID string) (*model.Meeting, error) {
	var meeting model.Meeting
	err := tx.Where("id = ?", meetingID).First(&meeting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("meeting", meetingID)
	}
	if err != nil {
		return nil, fmt.Errorf("load meeting %s: %w", meetingID, err)
	}
	return &meeting, nil
}

// GetMeeting 미팅 조회
func (s *Store) GetMeeting(ctx context.Context, meetingID string) (*model.Meeting, error) {
	return s.loadMeeting(s.db.WithContext(ctx), meetingID)
}

// GetMeetingByClassroom 강의실의 미팅 조회
func (s *Store) GetMeetingByClassroom(ctx context.Context, classroomID int64) (*model.Meeting, error) {
	var meeting model.Meeting
	err := s.db.WithContext(ctx).Where("classroom_id = ?", classroomID).First(&meeting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("meeting", fmt.Sprintf("for classroom %d", classroomID))
	}
	if err != nil {
		return nil, fmt.Errorf("load meeting for classroom %d: %w", classroomID, err)
	}
	return &meeting, nil
}

// CreateMeeting 미팅 생성 (강의실 당 하나)
func (s *Store) CreateMeeting(ctx context.Context, meeting *model.Meeting) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Meeting{}).Where("classroom_id = ?", meeting.ClassroomID).Count(&count).Error; err != nil {
			return fmt.Errorf("check existing meeting: %w", err)
		}
		if count > 0 {
			return apperr.Validation("classroom_id", "classroom already has a meeting")
		}

		if meeting.Status == "" {
			meeting.Status = model.MeetingStatusScheduled
		}
		err := tx.Omit("Classroom").Create(meeting).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Validation("classroom_id", "classroom already has a meeting")
		}
		if err != nil {
			return fmt.Errorf("create meeting: %w", err)
		}
		return nil
	})
}

// MarkLive scheduled → live 전이, 실제로 전이했으면 true (actual_start 는 한 번만 기록)
func (s *Store) MarkLive(ctx context.Context, meetingID string, at time.Time) (bool, error) {
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadMeeting(tx, meetingID); err != nil {
			return err
		}
		result := tx.Model(&model.Meeting{}).
			Where("id = ? AND status = ?", meetingID, model.MeetingStatusScheduled).
			Updates(map[string]any{
				"status":       model.MeetingStatusLive,
				"actual_start": at,
			})
		if result.Error != nil {
			return fmt.Errorf("mark meeting live: %w", result.Error)
		}
		changed = result.RowsAffected == 1
		return nil
	})
	return changed, err
}

// EndMeeting live → ended 전이, 현재 접속 중인 참가자를 모두 퇴장 처리하고 그 수를 반환
func (s *Store) EndMeeting(ctx context.Context, meetingID string, at time.Time) (int64, error) {
	var flushed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meeting, err := s.loadMeeting(tx, meetingID)
		if err != nil {
			return err
		}
		if meeting.Status != model.MeetingStatusLive {
			return apperr.Validation("status", fmt.Sprintf("meeting is %s, not live", meeting.Status))
		}

		result := tx.Model(&model.Meeting{}).
			Where("id = ? AND status = ?", meetingID, model.MeetingStatusLive).
			Updates(map[string]any{
				"status":     model.MeetingStatusEnded,
				"actual_end": at,
			})
		if result.Error != nil {
			return fmt.Errorf("end meeting: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.Validation("status", "meeting is no longer live")
		}

		result = tx.Model(&model.Participant{}).
			Where("meeting_id = ? AND is_present = ?", meetingID, true).
			Updates(map[string]any{
				"is_present":     false,
				"leave_time":     at,
				"raise_hand":     false,
				"screen_sharing": false,
			})
		if result.Error != nil {
			return fmt.Errorf("flush presence: %w", result.Error)
		}
		flushed = result.RowsAffected

		if err := tx.Model(&model.BreakoutRoom{}).
			Where("meeting_id = ? AND ended_at IS NULL", meetingID).
			Update("ended_at", at).Error; err != nil {
			return fmt.Errorf("close breakout rooms: %w", err)
		}

		notice := model.ChatMessage{MeetingID: meetingID, Message: "Meeting ended", IsSystem: true, CreatedAt: at}
		if err := tx.Omit("Meeting", "User").Create(&notice).Error; err != nil {
			return fmt.Errorf("append end notice: %w", err)
		}
		return nil
	})
	return flushed, err
}

// CancelMeeting scheduled → cancelled 전이
func (s *Store) CancelMeeting(ctx context.Context, meetingID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meeting, err := s.loadMeeting(tx, meetingID)
		if err != nil {
			return err
		}
		if meeting.Status != model.MeetingStatusScheduled {
			return apperr.Validation("status", fmt.Sprintf("meeting is %s, only scheduled meetings can be cancelled", meeting.Status))
		}
		result := tx.Model(&model.Meeting{}).
			Where("id = ? AND status = ?", meetingID, model.MeetingStatusScheduled).
			Update("status", model.MeetingStatusCancelled)
		if result.Error != nil {
			return fmt.Errorf("cancel meeting: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.Validation("status", "meeting is no longer scheduled")
		}
		return nil
	})
}
