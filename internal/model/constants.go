package model

// UserRole 계정 단위 역할
type UserRole string

const (
	UserRoleSuperAdmin UserRole = "superadmin"
	UserRoleAdmin      UserRole = "admin"
	UserRoleManager    UserRole = "manager"
	UserRoleTrainer    UserRole = "trainer"
	UserRoleStudent    UserRole = "student"
)

func (r UserRole) String() string {
	return string(r)
}

// IsAdministrative 관리자 계열 역할 여부 (superadmin, admin, manager)
func (r UserRole) IsAdministrative() bool {
	switch r {
	case UserRoleSuperAdmin, UserRoleAdmin, UserRoleManager:
		return true
	}
	return false
}

// MeetingStatus 미팅 상태
type MeetingStatus string

const (
	MeetingStatusScheduled MeetingStatus = "scheduled"
	MeetingStatusLive      MeetingStatus = "live"
	MeetingStatusEnded     MeetingStatus = "ended"
	MeetingStatusCancelled MeetingStatus = "cancelled"
)

func (s MeetingStatus) String() string {
	return string(s)
}

// IsTerminal ended, cancelled 는 더 이상 전이하지 않는다
func (s MeetingStatus) IsTerminal() bool {
	return s == MeetingStatusEnded || s == MeetingStatusCancelled
}

// MeetingRole 미팅 내 역할
type MeetingRole string

const (
	MeetingRoleHost        MeetingRole = "host"
	MeetingRoleCoHost      MeetingRole = "co-host"
	MeetingRoleParticipant MeetingRole = "participant"
)

func (r MeetingRole) String() string {
	return string(r)
}

// IsHostLike host 또는 co-host
func (r MeetingRole) IsHostLike() bool {
	return r == MeetingRoleHost || r == MeetingRoleCoHost
}

// Valid 알려진 역할인지 확인
func (r MeetingRole) Valid() bool {
	switch r {
	case MeetingRoleHost, MeetingRoleCoHost, MeetingRoleParticipant:
		return true
	}
	return false
}

// EnrollmentStatus 수강 상태
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusAttending EnrollmentStatus = "attending"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
)

func (s EnrollmentStatus) String() string {
	return string(s)
}
