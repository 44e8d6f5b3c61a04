package lifecycle

import (
	"golang.org/x/crypto/bcrypt"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
)

// Subject 권한 판단 시점의 최신 상태 (메시지마다 새로 조회)
type Subject struct {
	User        *model.User
	Meeting     *model.Meeting
	Classroom   *model.Classroom
	Participant *model.Participant // 아직 입장한 적 없으면 nil
	Enrolled    bool
}

// IsTrainer 강의실 담당 강사 여부
func (s *Subject) IsTrainer() bool {
	return s.Classroom != nil && s.User != nil && s.Classroom.TrainerID == s.User.ID
}

// IsAdmin 관리자 계열 계정 여부
func (s *Subject) IsAdmin() bool {
	return s.User != nil && s.User.Role.IsAdministrative()
}

// IsPresent 현재 접속 중인 참가자 여부
func (s *Subject) IsPresent() bool {
	return s.Participant != nil && s.Participant.IsPresent
}

// MeetingRole 미팅 내 역할 (참가 기록 없으면 빈 값)
func (s *Subject) MeetingRole() model.MeetingRole {
	if s.Participant == nil {
		return ""
	}
	return s.Participant.Role
}

// CanView 미팅 정보/스냅샷 조회: 강사, 수강생, 관리자
func CanView(s *Subject) error {
	if s.IsTrainer() || s.Enrolled || s.IsAdmin() {
		return nil
	}
	return apperr.Forbidden("view meeting", "not the trainer, an enrolled student or an administrator")
}

// CanJoin 입장 역할 검사 (비밀번호 검사는 CheckSecret 에서 별도로)
func CanJoin(s *Subject) error {
	if s.Meeting.Status.IsTerminal() {
		return apperr.Forbidden("join", "meeting is "+s.Meeting.Status.String())
	}
	if s.IsTrainer() || s.Enrolled || s.IsAdmin() {
		return nil
	}
	return apperr.Forbidden("join", "not the trainer, an enrolled student or an administrator")
}

// CheckSecret 비밀번호가 설정된 미팅이면 정확히 일치해야 한다
func CheckSecret(m *model.Meeting, secret string) error {
	if !m.RequiresSecret() {
		return nil
	}
	if secret == "" {
		return apperr.Forbidden("join", "access secret required")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.AccessSecretHash), []byte(secret)); err != nil {
		return apperr.Forbidden("join", "access secret does not match")
	}
	return nil
}

// CanChat 채팅: 접속 중인 참가자, 채팅이 켜져 있을 때
func CanChat(s *Subject) error {
	if !s.IsPresent() {
		return apperr.Forbidden("chat", "not a present participant")
	}
	if !s.Meeting.ChatEnabled {
		return apperr.Forbidden("chat", "chat is disabled for this meeting")
	}
	return nil
}

// CanReadWhiteboard 화이트보드 조회: 접속 중인 참가자
func CanReadWhiteboard(s *Subject) error {
	if !s.IsPresent() {
		return apperr.Forbidden("read whiteboard", "not a present participant")
	}
	return nil
}

// CanUpdateWhiteboard 화이트보드 수정: 담당 강사가 host/co-host 역할로 접속 중이고 화이트보드가 켜져 있을 때
func CanUpdateWhiteboard(s *Subject) error {
	if !s.Meeting.WhiteboardEnabled {
		return apperr.Forbidden("update whiteboard", "whiteboard is disabled for this meeting")
	}
	if !s.IsTrainer() {
		return apperr.Forbidden("update whiteboard", "only the meeting's trainer may draw")
	}
	if !s.IsPresent() {
		return apperr.Forbidden("update whiteboard", "not a present participant")
	}
	if !s.MeetingRole().IsHostLike() {
		return apperr.Forbidden("update whiteboard", "meeting role is "+s.MeetingRole().String())
	}
	return nil
}

// CanSelfUpdate 음소거/비디오/손들기: 본인만, 접속 중일 때
func CanSelfUpdate(s *Subject, targetUserID int64) error {
	if s.User.ID != targetUserID {
		return apperr.Forbidden("update participant", "participants may only update themselves")
	}
	if !s.IsPresent() {
		return apperr.Forbidden("update participant", "not a present participant")
	}
	return nil
}

// CanScreenShare 화면 공유: 본인, 접속 중, 화면 공유가 켜져 있을 때
func CanScreenShare(s *Subject) error {
	if !s.Meeting.ScreenShareEnabled {
		return apperr.Forbidden("share screen", "screen sharing is disabled for this meeting")
	}
	if !s.IsPresent() {
		return apperr.Forbidden("share screen", "not a present participant")
	}
	return nil
}

// CanManageBreakout 소회의실 관리: host/co-host, 진행 중인 미팅
func CanManageBreakout(s *Subject) error {
	if !s.MeetingRole().IsHostLike() {
		return apperr.Forbidden("manage breakout rooms", "host or co-host only")
	}
	if s.Meeting.Status != model.MeetingStatusLive {
		return apperr.Validation("status", "breakout rooms require a live meeting")
	}
	return nil
}

// CanEnd 미팅 종료: host/co-host 또는 관리자
func CanEnd(s *Subject) error {
	if s.MeetingRole().IsHostLike() || s.IsAdmin() {
		return nil
	}
	return apperr.Forbidden("end meeting", "host, co-host or administrator only")
}

// CanCancel 예정된 미팅 취소: 담당 강사 또는 관리자
func CanCancel(s *Subject) error {
	if s.IsTrainer() || s.IsAdmin() {
		return nil
	}
	return apperr.Forbidden("cancel meeting", "trainer or administrator only")
}

// CanSetRole 참가자 역할 변경: host 또는 관리자
func CanSetRole(s *Subject) error {
	if s.MeetingRole() == model.MeetingRoleHost || s.IsAdmin() {
		return nil
	}
	return apperr.Forbidden("change participant role", "host or administrator only")
}

// CanCreateMeeting 미팅 생성: 강의실 담당 강사 또는 관리자
func CanCreateMeeting(user *model.User, classroom *model.Classroom) error {
	if classroom.TrainerID == user.ID || user.Role.IsAdministrative() {
		return nil
	}
	return apperr.Forbidden("create meeting", "classroom trainer or administrator only")
}
