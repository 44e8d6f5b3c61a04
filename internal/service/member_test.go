package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
	"classroom-backend/internal/testutil"
)

func TestLookupUser(t *testing.T) {
	f := testutil.NewFixture(t)
	svc := NewMemberService(f.DB)
	ctx := context.Background()

	user, err := svc.LookupUser(ctx, f.Trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tina Trainer", user.Name())
	assert.Equal(t, model.UserRoleTrainer, user.Role)

	_, err = svc.LookupUser(ctx, 9999)
	assert.True(t, apperr.IsNotFoundOf(err, "user"))
}

func TestIsEnrolled(t *testing.T) {
	f := testutil.NewFixture(t)
	svc := NewMemberService(f.DB)
	ctx := context.Background()

	ok, err := svc.IsEnrolled(ctx, f.Classroom.ID, f.Student(0).ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsEnrolled(ctx, f.Classroom.ID, f.Outsider.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.DB.Model(&model.ClassroomEnrollment{}).
		Where("student_id = ?", f.Student(1).ID).
		Update("status", model.EnrollmentStatusDropped).Error)

	ok, err = svc.IsEnrolled(ctx, f.Classroom.ID, f.Student(1).ID)
	require.NoError(t, err)
	assert.False(t, ok, "dropped students are not enrolled")
}

func TestIsTrainerAndDisplayNames(t *testing.T) {
	f := testutil.NewFixture(t)
	svc := NewMemberService(f.DB)
	ctx := context.Background()

	ok, err := svc.IsTrainer(ctx, f.Classroom.ID, f.Trainer.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.IsTrainer(ctx, 404, f.Trainer.ID)
	assert.True(t, apperr.IsNotFoundOf(err, "classroom"))

	names, err := svc.DisplayNames(ctx, []int64{f.Trainer.ID, f.Student(0).ID})
	require.NoError(t, err)
	assert.Equal(t, "Student 1", names[f.Student(0).ID])
	assert.Len(t, names, 2)
}
