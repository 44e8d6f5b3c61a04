// Package testutil 테스트용 SQLite DB 와 기본 강의실 데이터
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"classroom-backend/internal/config"
	"classroom-backend/internal/database"
	"classroom-backend/internal/model"
)

// NewDB 테스트마다 독립된 인메모리 SQLite DB
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Driver:        "sqlite",
		SQLitePath:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		SlowThreshold: time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Fixture 강사 1, 수강생 3, 외부인 1, 관리자 1, 강의실 1, 미팅 1
type Fixture struct {
	DB        *gorm.DB
	Trainer   model.User
	Students  []model.User
	Outsider  model.User
	Admin     model.User
	Classroom model.Classroom
	Meeting   model.Meeting
}

// Option 미팅 설정 변경
type Option func(*model.Meeting)

// WithSecret 입장 비밀번호 설정
func WithSecret(secret string) Option {
	return func(m *model.Meeting) {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		m.AccessSecretHash = string(hash)
	}
}

// WithCapacity 정원 설정
func WithCapacity(n int) Option {
	return func(m *model.Meeting) { m.Capacity = n }
}

// WithWhiteboard 화이트보드 사용 여부
func WithWhiteboard(enabled bool) Option {
	return func(m *model.Meeting) { m.WhiteboardEnabled = enabled }
}

// WithChat 채팅 사용 여부
func WithChat(enabled bool) Option {
	return func(m *model.Meeting) { m.ChatEnabled = enabled }
}

// WithStatus 초기 상태
func WithStatus(status model.MeetingStatus) Option {
	return func(m *model.Meeting) { m.Status = status }
}

// NewFixture 기본 데이터가 들어간 DB
func NewFixture(t *testing.T, opts ...Option) *Fixture {
	t.Helper()
	db := NewDB(t)

	f := &Fixture{DB: db}
	f.Trainer = createUser(t, db, "trainer", "Tina Trainer", model.UserRoleTrainer)
	for i := 1; i <= 3; i++ {
		f.Students = append(f.Students, createUser(t, db, fmt.Sprintf("student%d", i), fmt.Sprintf("Student %d", i), model.UserRoleStudent))
	}
	f.Outsider = createUser(t, db, "outsider", "Olly Outsider", model.UserRoleStudent)
	f.Admin = createUser(t, db, "manager", "Mona Manager", model.UserRoleManager)

	f.Classroom = model.Classroom{Name: "Go 101", TrainerID: f.Trainer.ID}
	require.NoError(t, db.Create(&f.Classroom).Error)

	for _, s := range f.Students {
		require.NoError(t, db.Create(&model.ClassroomEnrollment{
			ClassroomID: f.Classroom.ID,
			StudentID:   s.ID,
			Status:      model.EnrollmentStatusEnrolled,
		}).Error)
	}

	f.Meeting = model.Meeting{
		ID:                 uuid.NewString(),
		ClassroomID:        f.Classroom.ID,
		Title:              "Go 101 live",
		Status:             model.MeetingStatusScheduled,
		WhiteboardEnabled:  true,
		ChatEnabled:        true,
		ScreenShareEnabled: true,
	}
	for _, opt := range opts {
		opt(&f.Meeting)
	}
	require.NoError(t, db.Omit("Classroom").Create(&f.Meeting).Error)

	return f
}

// Student i 번째 수강생 (0부터)
func (f *Fixture) Student(i int) model.User {
	return f.Students[i]
}

// Reload 미팅 다시 조회
func (f *Fixture) Reload(t *testing.T) model.Meeting {
	t.Helper()
	var m model.Meeting
	require.NoError(t, f.DB.First(&m, "id = ?", f.Meeting.ID).Error)
	return m
}

// Participant 참가자 조회
func (f *Fixture) Participant(t *testing.T, userID int64) model.Participant {
	t.Helper()
	var p model.Participant
	require.NoError(t, f.DB.Where("meeting_id = ? AND user_id = ?", f.Meeting.ID, userID).First(&p).Error)
	return p
}

func createUser(t *testing.T, db *gorm.DB, username, name string, role model.UserRole) model.User {
	t.Helper()
	u := model.User{Username: username, DisplayName: name, Role: role}
	require.NoError(t, db.Create(&u).Error)
	return u
}
