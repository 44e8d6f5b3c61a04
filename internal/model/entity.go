package model

import (
	"time"
)

// User 사용자 (계정 관리는 외부 서비스, 여기서는 조회만)
type User struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username    string    `gorm:"type:varchar(150);uniqueIndex;not null" json:"username"`
	DisplayName string    `gorm:"type:varchar(150)" json:"display_name"`
	Role        UserRole  `gorm:"type:varchar(20);not null" json:"role"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// Name 표시 이름 (없으면 username)
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Classroom 강의실
type Classroom struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(200);not null" json:"name"`
	TrainerID int64     `gorm:"not null;index" json:"trainer_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Trainer User `gorm:"foreignKey:TrainerID" json:"trainer,omitempty"`
}

func (Classroom) TableName() string {
	return "classrooms"
}

// ClassroomEnrollment 강의실 수강 등록
type ClassroomEnrollment struct {
	ID          int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	ClassroomID int64            `gorm:"not null;uniqueIndex:idx_enrollment_classroom_student" json:"classroom_id"`
	StudentID   int64            `gorm:"not null;uniqueIndex:idx_enrollment_classroom_student" json:"student_id"`
	Status      EnrollmentStatus `gorm:"type:varchar(20);not null" json:"status"`
	EnrolledAt  time.Time        `gorm:"autoCreateTime" json:"enrolled_at"`
}

func (ClassroomEnrollment) TableName() string {
	return "classroom_enrollments"
}

// Meeting 강의실 당 하나의 실시간 세션
type Meeting struct {
	ID                 string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	ClassroomID        int64         `gorm:"not null;uniqueIndex" json:"classroom_id"`
	Title              string        `gorm:"type:varchar(200);not null" json:"title"`
	Status             MeetingStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ScheduledStart     *time.Time    `json:"scheduled_start,omitempty"`
	ScheduledEnd       *time.Time    `json:"scheduled_end,omitempty"`
	ActualStart        *time.Time    `json:"actual_start,omitempty"`
	ActualEnd          *time.Time    `json:"actual_end,omitempty"`
	AccessSecretHash   string        `gorm:"type:varchar(100)" json:"-"`
	Capacity           int           `gorm:"not null" json:"capacity"` // 0 = 제한 없음
	WhiteboardEnabled  bool          `gorm:"not null" json:"whiteboard_enabled"`
	ChatEnabled        bool          `gorm:"not null" json:"chat_enabled"`
	ScreenShareEnabled bool          `gorm:"not null" json:"screen_share_enabled"`
	CreatedAt          time.Time     `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Classroom Classroom `gorm:"foreignKey:ClassroomID;constraint:OnDelete:CASCADE" json:"classroom,omitempty"`
}

func (Meeting) TableName() string {
	return "meetings"
}

// RequiresSecret 입장 비밀번호 필요 여부
func (m *Meeting) RequiresSecret() bool {
	return m.AccessSecretHash != ""
}

// Participant 미팅 참가자 (meeting, user 당 하나, 삭제하지 않음)
type Participant struct {
	ID            int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	MeetingID     string      `gorm:"type:varchar(36);not null;uniqueIndex:idx_participant_meeting_user" json:"meeting_id"`
	UserID        int64       `gorm:"not null;uniqueIndex:idx_participant_meeting_user" json:"user_id"`
	Role          MeetingRole `gorm:"type:varchar(20);not null" json:"role"`
	IsPresent     bool        `gorm:"not null" json:"is_present"`
	JoinTime      *time.Time  `json:"join_time,omitempty"`
	LeaveTime     *time.Time  `json:"leave_time,omitempty"`
	RaiseHand     bool        `gorm:"not null" json:"raise_hand"`
	IsMuted       bool        `gorm:"not null" json:"is_muted"`
	VideoEnabled  bool        `gorm:"not null" json:"video_enabled"`
	ScreenSharing bool        `gorm:"not null" json:"screen_sharing"`

	// Relations
	Meeting Meeting `gorm:"foreignKey:MeetingID;constraint:OnDelete:CASCADE" json:"-"`
	User    *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Participant) TableName() string {
	return "participants"
}

// ChatMessage 채팅 메시지 (추가만 가능)
type ChatMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MeetingID string    `gorm:"type:varchar(36);not null;index:idx_chat_meeting_created" json:"meeting_id"`
	UserID    *int64    `json:"user_id,omitempty"` // 시스템 메시지는 nil
	Message   string    `gorm:"type:text;not null" json:"message"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	IsSystem  bool      `gorm:"not null" json:"is_system"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_chat_meeting_created" json:"created_at"`

	// Relations
	Meeting Meeting `gorm:"foreignKey:MeetingID;constraint:OnDelete:CASCADE" json:"-"`
	User    *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// WhiteboardSnapshot 미팅 당 하나의 캔버스 스냅샷 (덮어쓰기)
type WhiteboardSnapshot struct {
	MeetingID      string    `gorm:"type:varchar(36);primaryKey" json:"meeting_id"`
	Data           string    `gorm:"type:text;not null" json:"data"`
	LastModifiedBy int64     `gorm:"not null" json:"last_modified_by"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Relations
	Meeting Meeting `gorm:"foreignKey:MeetingID;constraint:OnDelete:CASCADE" json:"-"`
}

func (WhiteboardSnapshot) TableName() string {
	return "whiteboard_snapshots"
}

// BreakoutRoom 소회의실
type BreakoutRoom struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	MeetingID string     `gorm:"type:varchar(36);not null;index" json:"meeting_id"`
	Name      string     `gorm:"type:varchar(100);not null" json:"name"`
	HostID    int64      `gorm:"not null" json:"host_id"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Relations
	Meeting Meeting          `gorm:"foreignKey:MeetingID;constraint:OnDelete:CASCADE" json:"-"`
	Members []BreakoutMember `gorm:"foreignKey:BreakoutRoomID" json:"members"`
}

func (BreakoutRoom) TableName() string {
	return "breakout_rooms"
}

// BreakoutMember 소회의실 멤버
type BreakoutMember struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BreakoutRoomID int64     `gorm:"not null;uniqueIndex:idx_breakout_member" json:"breakout_room_id"`
	UserID         int64     `gorm:"not null;uniqueIndex:idx_breakout_member" json:"user_id"`
	JoinedAt       time.Time `json:"joined_at"`
}

func (BreakoutMember) TableName() string {
	return "breakout_members"
}

// AllModels AutoMigrate 대상
func AllModels() []any {
	return []any{
		&User{},
		&Classroom{},
		&ClassroomEnrollment{},
		&Meeting{},
		&Participant{},
		&ChatMessage{},
		&WhiteboardSnapshot{},
		&BreakoutRoom{},
		&BreakoutMember{},
	}
}
