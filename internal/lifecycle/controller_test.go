package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
	"classroom-backend/internal/service"
	"classroom-backend/internal/store"
	"classroom-backend/internal/testutil"
	"classroom-backend/pkg/logger"
)

func newController(t *testing.T, opts ...testutil.Option) (*Controller, *testutil.Fixture) {
	t.Helper()
	f := testutil.NewFixture(t, opts...)
	return New(store.New(f.DB), service.NewMemberService(f.DB), logger.Discard()), f
}

func TestFirstJoinTransitionsToLive(t *testing.T) {
	c, f := newController(t)
	ctx := context.Background()

	first, err := c.Join(ctx, f.Meeting.ID, f.Student(0).ID, "")
	require.NoError(t, err)
	assert.True(t, first.WentLive)
	assert.Equal(t, model.MeetingStatusLive, first.Meeting.Status)
	require.NotNil(t, first.Meeting.ActualStart)
	startedAt := *first.Meeting.ActualStart

	time.Sleep(5 * time.Millisecond)
	second, err := c.Join(ctx, f.Meeting.ID, f.Trainer.ID, "")
	require.NoError(t, err)
	assert.False(t, second.WentLive)
	assert.Equal(t, model.MeetingRoleHost, second.Participant.Role)

	m := f.Reload(t)
	require.NotNil(t, m.ActualStart)
	assert.True(t, m.ActualStart.Equal(startedAt), "second join must not move actual_start")
	assert.Nil(t, m.ActualEnd)
}

func TestJoinIsIdempotentForParticipantRecord(t *testing.T) {
	c, f := newController(t)
	ctx := context.Background()

	_, err := c.Join(ctx, f.Meeting.ID, f.Student(0).ID, "")
	require.NoError(t, err)
	_, err = c.Join(ctx, f.Meeting.ID, f.Student(0).ID, "")
	require.NoError(t, err)

	participants, err := c.ListParticipants(ctx, f.Meeting.ID, f.Trainer.ID, false)
	require.NoError(t, err)
	assert.Len(t, participants, 1)
}

func TestJoinAuthorization(t *testing.T) {
	c, f := newController(t, testutil.WithSecret("s3cret"))
	ctx := context.Background()

	_, err := c.Join(ctx, f.Meeting.ID, f.Outsider.ID, "s3cret")
	assert.True(t, apperr.IsAuthorization(err), "unenrolled users are rejected")

	_, err = c.Join(ctx, f.Meeting.ID, f.Student(0).ID, "wrong")
	assert.True(t, apperr.IsAuthorization(err), "secret is checked in addition to role")

	_, err = c.Join(ctx, f.Meeting.ID, f.Trainer.ID, "")
	assert.True(t, apperr.IsAuthorization(err), "even the trainer needs the secret")

	res, err := c.Join(ctx, f.Meeting.ID, f.Admin.ID, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, model.MeetingRoleParticipant, res.Participant.Role)

	assert.Equal(t, model.MeetingStatusLive, f.Reload(t).Status)

	_, err = c.Join(ctx, "missing", f.Trainer.ID, "")
	assert.True(t, apperr.IsNotFoundOf(err, "meeting"))
}

func TestRejectedJoinDoesNotStartMeeting(t *testing.T) {
	c, f := newController(t)
	ctx := context.Background()

	_, err := c.Join(ctx, f.Meeting.ID, f.Outsider.ID, "")
	require.Error(t, err)

	m := f.Reload(t)
	assert.Equal(t, model.MeetingStatusScheduled, m.Status)
	assert.Nil(t, m.ActualStart)
}

func TestJoinCapacity(t *testing.T) {
	c, f := newController(t, testutil.WithCapacity(1))
	ctx := context.Background()

	_, err := c.Join(ctx, f.Meeting.ID, f.Student(0).ID, "")
	require.NoError(t, err)

	_, err = c.Join(ctx, f.Meeting.ID, f.Student(1).ID, "")
	assert.True(t, apperr.IsAuthorization(err))

	_, err = c.Join(ctx, f.Meeting.ID, f.Student(0).ID, "")
	assert.NoError(t, err, "rejoining while present does not count twice")

	_, err = c.Join(ctx, f.Meeting.ID, f.Trainer.ID, "")
	assert.NoError(t, err, "the trainer is never locked out")
}

func TestEndMeetingFlushesPresence(t *testing.T) {
	c, f := newController(t)
	ctx := context.Background()

	for _, u := range []model.User{f.Trainer, f.Student(0), f.Student(1)} {
		_, err := c.Join(ctx, f.Meeting.ID, u.ID, "")
		require.NoError(t, err)
	}

	_, err := c.End(ctx, f.Meeting.ID, f.Student(0).ID)
	assert.True(t, apperr.IsAuthorization(err), "plain participants cannot end")

	res, err := c.End(ctx, f.Meeting.ID, f.Trainer.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Flushed)
	assert.Equal(t, model.MeetingStatusEnded, res.Meeting.Status)
	assert.NotNil(t, res.Meeting.ActualEnd)

	for _, u := range []model.User{f.Trainer, f.Student(0), f.Student(1)} {
		p := f.Participant(t, u.ID)
		assert.False(t, p.IsPresent)
		assert.NotNil(t, p.LeaveTime)
	}

	_, err = c.Join(ctx, f.Meeting.ID, f.Student(2).ID, "")
	assert.True(t, apperr.IsAuthorization(err), "ended meetings cannot be joined")
}

func TestAdminCanEndWithoutJoining(t *testing.T) {
	c, f := newController(t)
	ctx := context.Background()

	_, err := c.Join(ctx, f.Meeting.ID, f.Student(0).ID, "")
	require.NoError(t, err)

	res, err := c.End(ctx, f.Meeting.ID, f.Admin.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Flushed)
}

func TestCancel(t *testing.T) {
	c, f := newController(t)
	ctx := context.Background()

	_, err := c.Cancel(ctx, f.Meeting.ID, f.Student(0).ID)
	assert.True(t, apperr.IsAuthorization(err))

	m, err := c.Cancel(ctx, f.Meeting.ID, f.Trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MeetingStatusCancelled, m.Status)

	_, err = c.Join(ctx, f.Meeting.ID, f.Student(0).ID, "")
	assert.True(t, apperr.IsAuthorization(err))
}

func TestRoleDemotionRevokesWhiteboard(t *testing.T) {
	c, f := newController(t)
	ctx := context.Background()

	_, err := c.Join(ctx, f.Meeting.ID, f.Trainer.ID, "")
	require.NoError(t, err)

	_, err = c.UpdateWhiteboard(ctx, f.Meeting.ID, f.Trainer.ID, `{"v":1}`)
	require.NoError(t, err)

	_, err = c.SetParticipantRole(ctx, f.Meeting.ID, f.Admin.ID, f.Trainer.ID, model.MeetingRoleParticipant)
	require.NoError(t, err)

	_, err = c.UpdateWhiteboard(ctx, f.Meeting.ID, f.Trainer.ID, `{"v":2}`)
	assert.True(t, apperr.IsAuthorization(err))

	_, err = c.Join(ctx, f.Meeting.ID, f.Student(0).ID, "")
	require.NoError(t, err)
	snapshot, err := c.ReadWhiteboard(ctx, f.Meeting.ID, f.Student(0).ID)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, snapshot.Data)
}

func TestChatAndSelfUpdate(t *testing.T) {
	c, f := newController(t)
	ctx := context.Background()
	student := f.Student(0).ID

	_, err := c.SendChat(ctx, f.Meeting.ID, student, "hello", nil)
	assert.True(t, apperr.IsAuthorization(err), "must join before chatting")

	_, err = c.Join(ctx, f.Meeting.ID, student, "")
	require.NoError(t, err)

	res, err := c.SendChat(ctx, f.Meeting.ID, student, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Student 1", res.User.Name())

	_, err = c.SendChat(ctx, f.Meeting.ID, student, "  ", nil)
	assert.True(t, apperr.IsValidation(err))

	_, err = c.UpdateSelf(ctx, f.Meeting.ID, student, student, SelfPatch{IsMuted: store.Ptr(true)})
	require.NoError(t, err)
	p, err := c.UpdateSelf(ctx, f.Meeting.ID, student, student, SelfPatch{RaiseHand: store.Ptr(true)})
	require.NoError(t, err)
	assert.True(t, p.IsMuted)
	assert.True(t, p.RaiseHand)

	_, err = c.UpdateSelf(ctx, f.Meeting.ID, student, f.Trainer.ID, SelfPatch{IsMuted: store.Ptr(true)})
	assert.True(t, apperr.IsAuthorization(err))

	_, err = c.UpdateSelf(ctx, f.Meeting.ID, student, student, SelfPatch{})
	assert.True(t, apperr.IsValidation(err))

	_, err = c.Leave(ctx, f.Meeting.ID, student)
	require.NoError(t, err)
	_, err = c.SendChat(ctx, f.Meeting.ID, student, "still here?", nil)
	assert.True(t, apperr.IsAuthorization(err))
}

func TestBreakoutRooms(t *testing.T) {
	c, f := newController(t)
	ctx := context.Background()

	for _, u := range []model.User{f.Trainer, f.Student(0)} {
		_, err := c.Join(ctx, f.Meeting.ID, u.ID, "")
		require.NoError(t, err)
	}

	_, err := c.CreateBreakoutRoom(ctx, f.Meeting.ID, f.Student(0).ID, "Group A")
	assert.True(t, apperr.IsAuthorization(err))

	_, err = c.CreateBreakoutRoom(ctx, f.Meeting.ID, f.Trainer.ID, "")
	assert.True(t, apperr.IsValidation(err))

	room, err := c.CreateBreakoutRoom(ctx, f.Meeting.ID, f.Trainer.ID, "Group A")
	require.NoError(t, err)
	require.Len(t, room.Members, 1)
	assert.Equal(t, f.Trainer.ID, room.Members[0].UserID)

	_, err = c.SetParticipantRole(ctx, f.Meeting.ID, f.Trainer.ID, f.Student(0).ID, model.MeetingRoleCoHost)
	require.NoError(t, err)
	_, err = c.CreateBreakoutRoom(ctx, f.Meeting.ID, f.Student(0).ID, "Group B")
	require.NoError(t, err, "co-hosts may create breakout rooms")

	room, err = c.AddBreakoutMember(ctx, f.Meeting.ID, f.Trainer.ID, room.ID, f.Student(0).ID)
	require.NoError(t, err)
	assert.Len(t, room.Members, 2)

	_, err = c.AddBreakoutMember(ctx, f.Meeting.ID, f.Trainer.ID, room.ID, f.Outsider.ID)
	assert.True(t, apperr.IsNotFoundOf(err, "participant"))

	rooms, err := c.ListBreakoutRooms(ctx, f.Meeting.ID, f.Student(1).ID, true)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	_, err = c.EndBreakoutRoom(ctx, f.Meeting.ID, f.Trainer.ID, room.ID)
	require.NoError(t, err)
	rooms, err = c.ListBreakoutRooms(ctx, f.Meeting.ID, f.Trainer.ID, true)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)

	history, err := c.ChatHistory(ctx, f.Meeting.ID, f.Trainer.ID, 0, 50)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].IsSystem)
}

func TestCreateMeeting(t *testing.T) {
	c, f := newController(t)
	ctx := context.Background()

	second := model.Classroom{Name: "Go 201", TrainerID: f.Trainer.ID}
	require.NoError(t, f.DB.Create(&second).Error)

	_, err := c.CreateMeeting(ctx, f.Student(0).ID, second.ID, MeetingSpec{})
	assert.True(t, apperr.IsAuthorization(err))

	start := time.Now().Add(time.Hour)
	end := start.Add(-time.Minute)
	_, err = c.CreateMeeting(ctx, f.Trainer.ID, second.ID, MeetingSpec{ScheduledStart: &start, ScheduledEnd: &end})
	assert.True(t, apperr.IsValidation(err))

	m, err := c.CreateMeeting(ctx, f.Trainer.ID, second.ID, MeetingSpec{AccessSecret: "pw", ChatEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, "Go 201", m.Title)
	assert.Equal(t, model.MeetingStatusScheduled, m.Status)
	assert.True(t, m.RequiresSecret())
	assert.NotEqual(t, "pw", m.AccessSecretHash)

	_, err = c.CreateMeeting(ctx, f.Admin.ID, second.ID, MeetingSpec{})
	assert.True(t, apperr.IsValidation(err), "one meeting per classroom")

	_, err = c.CreateMeeting(ctx, f.Trainer.ID, 4242, MeetingSpec{})
	assert.True(t, apperr.IsNotFoundOf(err, "classroom"))
}

func TestLeaveAfterEndKeepsFlushTime(t *testing.T) {
	c, f := newController(t)
	ctx := context.Background()

	_, err := c.Join(ctx, f.Meeting.ID, f.Student(0).ID, "")
	require.NoError(t, err)
	_, err = c.End(ctx, f.Meeting.ID, f.Admin.ID)
	require.NoError(t, err)
	flushed := f.Participant(t, f.Student(0).ID)

	time.Sleep(5 * time.Millisecond)
	p, err := c.Leave(ctx, f.Meeting.ID, f.Student(0).ID)
	require.NoError(t, err)
	assert.False(t, p.IsPresent)
	assert.True(t, p.LeaveTime.Equal(*flushed.LeaveTime))

	_, err = c.Leave(ctx, f.Meeting.ID, f.Outsider.ID)
	assert.True(t, apperr.IsNotFoundOf(err, "participant"))
}
