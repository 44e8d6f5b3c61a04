// Package lifecycle 미팅 상태 머신과 실시간 동작별 권한 정책
//
// 상태 전이: scheduled → live → ended, scheduled → cancelled.
// ended, cancelled 는 종료 상태다. live 전이는 첫 번째 입장 성공 시 자동으로 일어난다.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/metrics"
	"classroom-backend/internal/model"
	"classroom-backend/internal/store"
)

// Directory 사용자/강의실 조회 (service.MemberService 가 구현)
type Directory interface {
	LookupUser(ctx context.Context, userID int64) (*model.User, error)
	GetClassroom(ctx context.Context, classroomID int64) (*model.Classroom, error)
	IsEnrolled(ctx context.Context, classroomID, userID int64) (bool, error)
}

// Controller 미팅 생명주기 + 권한 검사 후 저장소 변경
type Controller struct {
	store     *store.Store
	directory Directory
	logger    *slog.Logger
}

// New Controller 생성
func New(st *store.Store, directory Directory, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:     st,
		directory: directory,
		logger:    logger.With("component", "lifecycle"),
	}
}

// Store 하위 저장소
func (c *Controller) Store() *store.Store {
	return c.store
}

// subject 현재 DB 상태로 권한 판단 대상 구성
func (c *Controller) subject(ctx context.Context, meetingID string, userID int64, withEnrollment bool) (*Subject, error) {
	meeting, err := c.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	user, err := c.directory.LookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	classroom, err := c.directory.GetClassroom(ctx, meeting.ClassroomID)
	if err != nil {
		return nil, err
	}

	s := &Subject{User: user, Meeting: meeting, Classroom: classroom}

	participant, err := c.store.GetParticipant(ctx, meetingID, userID)
	switch {
	case err == nil:
		s.Participant = participant
	case apperr.IsNotFoundOf(err, "participant"):
	default:
		return nil, err
	}

	if withEnrollment {
		enrolled, err := c.directory.IsEnrolled(ctx, classroom.ID, userID)
		if err != nil {
			return nil, err
		}
		s.Enrolled = enrolled
	}
	return s, nil
}

// MeetingSpec 미팅 생성 요청
type MeetingSpec struct {
	Title              string
	ScheduledStart     *time.Time
	ScheduledEnd       *time.Time
	AccessSecret       string
	Capacity           int
	WhiteboardEnabled  bool
	ChatEnabled        bool
	ScreenShareEnabled bool
}

// CreateMeeting 강의실 미팅 생성 (강의실 당 하나)
func (c *Controller) CreateMeeting(ctx context.Context, actorID, classroomID int64, spec MeetingSpec) (*model.Meeting, error) {
	user, err := c.directory.LookupUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	classroom, err := c.directory.GetClassroom(ctx, classroomID)
	if err != nil {
		return nil, err
	}
	if err := CanCreateMeeting(user, classroom); err != nil {
		return nil, err
	}
	if spec.ScheduledStart != nil && spec.ScheduledEnd != nil && !spec.ScheduledEnd.After(*spec.ScheduledStart) {
		return nil, apperr.Validation("scheduled_end", "must be after scheduled_start")
	}
	if spec.Capacity < 0 {
		return nil, apperr.Validation("capacity", "must not be negative")
	}

	meeting := &model.Meeting{
		ID:                 uuid.NewString(),
		ClassroomID:        classroom.ID,
		Title:              spec.Title,
		Status:             model.MeetingStatusScheduled,
		ScheduledStart:     spec.ScheduledStart,
		ScheduledEnd:       spec.ScheduledEnd,
		Capacity:           spec.Capacity,
		WhiteboardEnabled:  spec.WhiteboardEnabled,
		ChatEnabled:        spec.ChatEnabled,
		ScreenShareEnabled: spec.ScreenShareEnabled,
	}
	if meeting.Title == "" {
		meeting.Title = classroom.Name
	}
	if spec.AccessSecret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(spec.AccessSecret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash access secret: %w", err)
		}
		meeting.AccessSecretHash = string(hash)
	}

	if err := c.store.CreateMeeting(ctx, meeting); err != nil {
		return nil, err
	}
	c.logger.Info("meeting created", "meeting_id", meeting.ID, "classroom_id", classroom.ID, "actor_id", actorID)
	return meeting, nil
}

// Meeting 미팅 상세 (강사, 수강생, 관리자만)
func (c *Controller) Meeting(ctx context.Context, meetingID string, actorID int64) (*model.Meeting, error) {
	s, err := c.subject(ctx, meetingID, actorID, true)
	if err != nil {
		return nil, err
	}
	if err := CanView(s); err != nil {
		return nil, err
	}
	return s.Meeting, nil
}

// CheckJoin 부수 효과 없이 입장 가능 여부만 확인
func (c *Controller) CheckJoin(ctx context.Context, meetingID string, userID int64, secret string) (*Subject, error) {
	s, err := c.subject(ctx, meetingID, userID, true)
	if err != nil {
		return nil, err
	}
	if err := c.authorizeJoin(ctx, s, secret); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Controller) authorizeJoin(ctx context.Context, s *Subject, secret string) error {
	if err := CanJoin(s); err != nil {
		return err
	}
	if err := CheckSecret(s.Meeting, secret); err != nil {
		return err
	}

	if s.Meeting.Capacity > 0 && !s.IsPresent() && !s.IsTrainer() && !s.IsAdmin() {
		present, err := c.store.CountPresent(ctx, s.Meeting.ID)
		if err != nil {
			return err
		}
		if present >= int64(s.Meeting.Capacity) {
			return apperr.Forbidden("join", "meeting is full")
		}
	}
	return nil
}

// JoinResult 입장 결과
type JoinResult struct {
	Meeting     *model.Meeting
	Participant *model.Participant
	User        *model.User
	WentLive    bool // 이 입장으로 scheduled → live 전이가 일어났는지
}

// Join 입장 처리: 권한/비밀번호 검사, 참가자 접속 표시, 첫 입장이면 live 전이
func (c *Controller) Join(ctx context.Context, meetingID string, userID int64, secret string) (*JoinResult, error) {
	s, err := c.subject(ctx, meetingID, userID, true)
	if err != nil {
		return nil, err
	}
	if err := c.authorizeJoin(ctx, s, secret); err != nil {
		return nil, err
	}

	now := c.store.Now()
	participant, err := c.store.UpsertParticipant(ctx, meetingID, userID, store.ParticipantPatch{
		IsPresent: store.Ptr(true),
		JoinTime:  store.Ptr(now),
	})
	if err != nil {
		return nil, err
	}

	result := &JoinResult{Meeting: s.Meeting, Participant: participant, User: s.User}
	if s.Meeting.Status == model.MeetingStatusScheduled {
		changed, err := c.store.MarkLive(ctx, meetingID, now)
		if err != nil {
			return nil, err
		}
		if changed {
			result.WentLive = true
			metrics.RecordTransition(model.MeetingStatusLive.String())
			c.logger.Info("meeting is live", "meeting_id", meetingID, "first_user_id", userID)
		}
		if result.Meeting, err = c.store.GetMeeting(ctx, meetingID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Leave 퇴장 처리 (연결 종료 시), 이미 퇴장 처리된 참가자는 leave_time 을 유지한다
func (c *Controller) Leave(ctx context.Context, meetingID string, userID int64) (*model.Participant, error) {
	current, err := c.store.GetParticipant(ctx, meetingID, userID)
	if err != nil {
		return nil, err
	}
	if !current.IsPresent {
		return current, nil
	}
	return c.store.UpsertParticipant(ctx, meetingID, userID, store.ParticipantPatch{
		IsPresent:     store.Ptr(false),
		LeaveTime:     store.Ptr(c.store.Now()),
		ScreenSharing: store.Ptr(false),
	})
}

// EndResult 종료 결과
type EndResult struct {
	Meeting *model.Meeting
	Flushed int64 // 강제 퇴장 처리된 참가자 수
}

// End live → ended: host/co-host 또는 관리자만, 접속 중인 참가자는 모두 퇴장 처리
func (c *Controller) End(ctx context.Context, meetingID string, actorID int64) (*EndResult, error) {
	s, err := c.subject(ctx, meetingID, actorID, false)
	if err != nil {
		return nil, err
	}
	if err := CanEnd(s); err != nil {
		return nil, err
	}

	flushed, err := c.store.EndMeeting(ctx, meetingID, c.store.Now())
	if err != nil {
		return nil, err
	}
	metrics.RecordTransition(model.MeetingStatusEnded.String())

	meeting, err := c.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	c.logger.Info("meeting ended", "meeting_id", meetingID, "actor_id", actorID, "flushed", flushed)
	return &EndResult{Meeting: meeting, Flushed: flushed}, nil
}

// Cancel scheduled → cancelled: 담당 강사 또는 관리자만
func (c *Controller) Cancel(ctx context.Context, meetingID string, actorID int64) (*model.Meeting, error) {
	s, err := c.subject(ctx, meetingID, actorID, false)
	if err != nil {
		return nil, err
	}
	if err := CanCancel(s); err != nil {
		return nil, err
	}
	if err := c.store.CancelMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	metrics.RecordTransition(model.MeetingStatusCancelled.String())
	c.logger.Info("meeting cancelled", "meeting_id", meetingID, "actor_id", actorID)
	return c.store.GetMeeting(ctx, meetingID)
}
