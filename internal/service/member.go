package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
)

// MemberService 사용자/수강 정보 조회 (계정 관리는 외부 서비스 소관)
type MemberService struct {
	db *gorm.DB
}

// NewMemberService MemberService 생성
func NewMemberService(db *gorm.DB) *MemberService {
	return &MemberService{db: db}
}

// LookupUser 사용자 조회, 없으면 NotFoundError
func (s *MemberService) LookupUser(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user %d: %w", userID, err)
	}
	return &user, nil
}

// GetClassroom 강의실 조회
func (s *MemberService) GetClassroom(ctx context.Context, classroomID int64) (*model.Classroom, error) {
	var classroom model.Classroom
	err := s.db.WithContext(ctx).First(&classroom, classroomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("classroom", classroomID)
	}
	if err != nil {
		return nil, fmt.Errorf("get classroom %d: %w", classroomID, err)
	}
	return &classroom, nil
}

// IsEnrolled 수강 중인지 확인 (dropped 제외)
func (s *MemberService) IsEnrolled(ctx context.Context, classroomID, userID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ClassroomEnrollment{}).
		Where("classroom_id = ? AND student_id = ? AND status <> ?", classroomID, userID, model.EnrollmentStatusDropped).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return count > 0, nil
}

// IsTrainer 강의실 담당 강사인지 확인
func (s *MemberService) IsTrainer(ctx context.Context, classroomID, userID int64) (bool, error) {
	classroom, err := s.GetClassroom(ctx, classroomID)
	if err != nil {
		return false, err
	}
	return classroom.TrainerID == userID, nil
}

// DisplayNames 여러 사용자의 표시 이름 조회
func (s *MemberService) DisplayNames(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	var users []model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load display names: %w", err)
	}
	for i := range users {
		names[users[i].ID] = users[i].Name()
	}
	return names, nil
}
