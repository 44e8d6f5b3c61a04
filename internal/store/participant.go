package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
)

// ParticipantPatch 참가자 부분 업데이트, nil 필드는 기존 값 유지
type ParticipantPatch struct {
	Role          *model.MeetingRole
	IsPresent     *bool
	JoinTime      *time.Time
	LeaveTime     *time.Time
	RaiseHand     *bool
	IsMuted       *bool
	VideoEnabled  *bool
	ScreenSharing *bool
}

// columns 값이 있는 필드만 컬럼 맵으로 변환
func (p ParticipantPatch) columns() map[string]any {
	cols := make(map[string]any)
	if p.Role != nil {
		cols["role"] = *p.Role
	}
	if p.IsPresent != nil {
		cols["is_present"] = *p.IsPresent
	}
	if p.JoinTime != nil {
		cols["join_time"] = *p.JoinTime
	}
	if p.LeaveTime != nil {
		cols["leave_time"] = *p.LeaveTime
	}
	if p.RaiseHand != nil {
		cols["raise_hand"] = *p.RaiseHand
	}
	if p.IsMuted != nil {
		cols["is_muted"] = *p.IsMuted
	}
	if p.VideoEnabled != nil {
		cols["video_enabled"] = *p.VideoEnabled
	}
	if p.ScreenSharing != nil {
		cols["screen_sharing"] = *p.ScreenSharing
	}
	return cols
}

// IsEmpty 변경할 필드가 하나도 없는지
func (p ParticipantPatch) IsEmpty() bool {
	return len(p.columns()) == 0
}

// UpsertParticipant 참가자 레코드를 (없으면 생성하고) patch 필드만 병합
//
// 생성 시 기본 역할은 강의실 담당 강사면 host, 아니면 participant.
// 병합은 단일 행 UPDATE 로 수행하므로 같은 참가자에 대한 동시 호출이 서로의 변경을 덮어쓰지 않는다.
func (s *Store) UpsertParticipant(ctx context.Context, meetingID string, userID int64, patch ParticipantPatch) (*model.Participant, error) {
	var out model.Participant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meeting, err := s.loadMeeting(tx, meetingID)
		if err != nil {
			return err
		}

		role, err := defaultRole(tx, meeting, userID)
		if err != nil {
			return err
		}

		seed := model.Participant{MeetingID: meetingID, UserID: userID, Role: role}
		if err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "meeting_id"}, {Name: "user_id"}},
				DoNothing: true,
			}).
			Create(&seed).Error; err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}

		if cols := patch.columns(); len(cols) > 0 {
			if err := tx.Model(&model.Participant{}).
				Where("meeting_id = ? AND user_id = ?", meetingID, userID).
				Updates(cols).Error; err != nil {
				return fmt.Errorf("update participant: %w", err)
			}
		}

		if err := tx.Where("meeting_id = ? AND user_id = ?", meetingID, userID).First(&out).Error; err != nil {
			return fmt.Errorf("reload participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func defaultRole(tx *gorm.DB, meeting *model.Meeting, userID int64) (model.MeetingRole, error) {
	var trainerID int64
	if err := tx.Model(&model.Classroom{}).
		Select("trainer_id").
		Where("id = ?", meeting.ClassroomID).
		Scan(&trainerID).Error; err != nil {
		return "", fmt.Errorf("load classroom trainer: %w", err)
	}
	if trainerID == userID {
		return model.MeetingRoleHost, nil
	}
	return model.MeetingRoleParticipant, nil
}

// GetParticipant 참가자 조회, 미팅이나 참가자가 없으면 NotFoundError
func (s *Store) GetParticipant(ctx context.Context, meetingID string, userID int64) (*model.Participant, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.loadMeeting(db, meetingID); err != nil {
		return nil, err
	}

	var p model.Participant
	err := db.Where("meeting_id = ? AND user_id = ?", meetingID, userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("participant", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return &p, nil
}

// ListParticipants 참가자 목록 (presentOnly 면 접속 중인 참가자만)
func (s *Store) ListParticipants(ctx context.Context, meetingID string, presentOnly bool) ([]model.Participant, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.loadMeeting(db, meetingID); err != nil {
		return nil, err
	}

	query := db.Preload("User").Where("meeting_id = ?", meetingID)
	if presentOnly {
		query = query.Where("is_present = ?", true)
	}

	var participants []model.Participant
	if err := query.Order("id ASC").Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}

// CountPresent 접속 중인 참가자 수
func (s *Store) CountPresent(ctx context.Context, meetingID string) (int64, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.loadMeeting(db, meetingID); err != nil {
		return 0, err
	}

	var count int64
	if err := db.Model(&model.Participant{}).
		Where("meeting_id = ? AND is_present = ?", meetingID, true).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count present participants: %w", err)
	}
	return count, nil
}

// ResetPresence 접속 중으로 남아 있는 참가자를 퇴장 처리 (서버 비정상 종료 후 정리용)
//
// meetingID 가 비어 있으면 모든 미팅이 대상이다.
func (s *Store) ResetPresence(ctx context.Context, meetingID string, at time.Time) (int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Participant{}).Where("is_present = ?", true)
	if meetingID != "" {
		q = q.Where("meeting_id = ?", meetingID)
	}
	result := q.Updates(map[string]any{
		"is_present":     false,
		"leave_time":     at,
		"screen_sharing": false,
	})
	if result.Error != nil {
		return 0, fmt.Errorf("reset presence: %w", result.Error)
	}
	return result.RowsAffected, nil
}
