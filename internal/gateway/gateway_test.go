package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"classroom-backend/internal/lifecycle"
	"classroom-backend/internal/model"
	"classroom-backend/internal/registry"
	"classroom-backend/internal/service"
	"classroom-backend/internal/store"
	"classroom-backend/internal/testutil"
	"classroom-backend/pkg/logger"
)

// =============================================================================
// fakes
// =============================================================================

type fakeConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	c.out <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type fakePresence struct {
	mu     sync.Mutex
	online map[int64]bool
}

func (p *fakePresence) set(userID int64, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = online
}

func (p *fakePresence) MarkOnline(_ context.Context, _ string, userID int64) error {
	p.set(userID, true)
	return nil
}

func (p *fakePresence) Refresh(context.Context, string, int64) error { return nil }

func (p *fakePresence) MarkOffline(_ context.Context, _ string, userID int64) error {
	p.set(userID, false)
	return nil
}

func (p *fakePresence) isOnline(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

// =============================================================================
// harness
// =============================================================================

type harness struct {
	f          *testutil.Fixture
	registry   *registry.Registry
	controller *lifecycle.Controller
	gateway    *Gateway
	presence   *fakePresence
}

func newHarness(t *testing.T, opts ...testutil.Option) *harness {
	t.Helper()
	f := testutil.NewFixture(t, opts...)
	log := logger.Discard()

	h := &harness{
		f:          f,
		registry:   registry.New(log),
		controller: lifecycle.New(store.New(f.DB), service.NewMemberService(f.DB), log),
		presence:   &fakePresence{online: make(map[int64]bool)},
	}
	h.gateway = New(h.registry, h.controller, h.presence, Config{WriteWait: time.Second}, log)
	return h
}

type client struct {
	t    *testing.T
	conn *fakeConn
	done chan struct{}
}

func (h *harness) connect(t *testing.T, meetingID string, userID int64) *client {
	t.Helper()
	c := &client{t: t, conn: newFakeConn(), done: make(chan struct{})}
	go func() {
		h.gateway.Serve(c.conn, meetingID, userID)
		close(c.done)
	}()
	t.Cleanup(func() { c.hangup() })
	return c
}

// join 접속 후 룸에 등록될 때까지 대기
func (h *harness) join(t *testing.T, userID int64) *client {
	t.Helper()
	before := h.registry.Count(h.f.Meeting.ID)
	c := h.connect(t, h.f.Meeting.ID, userID)
	c.send(map[string]any{"type": TypeJoin, "user_id": userID})
	require.Eventually(t, func() bool {
		return h.registry.Count(h.f.Meeting.ID) == before+1
	}, 2*time.Second, 5*time.Millisecond)
	return c
}

func (c *client) send(v any) {
	c.t.Helper()
	data, err := json.Marshal(v)
	require.NoError(c.t, err)
	c.sendRaw(data)
}

func (c *client) sendRaw(data []byte) {
	c.t.Helper()
	select {
	case c.conn.in <- data:
	case <-time.After(2 * time.Second):
		c.t.Fatal("connection is not reading")
	}
}

func (c *client) next() map[string]any {
	c.t.Helper()
	select {
	case data := <-c.conn.out:
		var msg map[string]any
		require.NoError(c.t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		c.t.Fatal("no message received")
		return nil
	}
}

func (c *client) expectNone(wait time.Duration) {
	c.t.Helper()
	select {
	case data := <-c.conn.out:
		c.t.Fatalf("unexpected message: %s", data)
	case <-time.After(wait):
	}
}

func (c *client) hangup() {
	_ = c.conn.Close()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
	}
}

func (c *client) waitClosed() {
	c.t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		c.t.Fatal("connection was not closed")
	}
}

// =============================================================================
// tests
// =============================================================================

func TestJoinBroadcastsToOthersOnly(t *testing.T) {
	h := newHarness(t)
	trainer := h.join(t, h.f.Trainer.ID)
	student := h.join(t, h.f.Student(0).ID)

	msg := trainer.next()
	assert.Equal(t, TypeParticipantJoined, msg["type"])
	assert.EqualValues(t, h.f.Student(0).ID, msg["user_id"])
	assert.Equal(t, "Student 1", msg["username"])

	student.expectNone(100 * time.Millisecond)
	assert.True(t, h.presence.isOnline(h.f.Student(0).ID))
	assert.Equal(t, model.MeetingStatusLive, h.f.Reload(t).Status)
	assert.Equal(t, 2, h.gateway.Connections())
}

func TestSecondJoinDoesNotRebroadcast(t *testing.T) {
	h := newHarness(t)
	trainer := h.join(t, h.f.Trainer.ID)
	student := h.join(t, h.f.Student(0).ID)
	assert.Equal(t, TypeParticipantJoined, trainer.next()["type"])

	student.send(map[string]any{"type": TypeJoin})
	student.send(map[string]any{"type": TypeChatMessage, "message": "after rejoin"})

	msg := trainer.next()
	assert.Equal(t, TypeChatMessage, msg["type"])
	assert.Equal(t, TypeChatAck, student.next()["type"])
	assert.Equal(t, 2, h.registry.Count(h.f.Meeting.ID))
}

func TestChatBroadcastAndValidation(t *testing.T) {
	h := newHarness(t)
	trainer := h.join(t, h.f.Trainer.ID)
	student := h.join(t, h.f.Student(0).ID)
	trainer.next()

	student.send(map[string]any{"type": TypeChatMessage, "message": "   "})
	msg := student.next()
	assert.Equal(t, TypeError, msg["type"])
	assert.Equal(t, "validation", msg["code"])
	assert.Equal(t, TypeChatMessage, msg["request_type"])
	trainer.expectNone(100 * time.Millisecond)

	student.send(map[string]any{"type": TypeChatMessage, "message": "hello class"})
	msg = trainer.next()
	assert.Equal(t, TypeChatMessage, msg["type"])
	assert.Equal(t, "hello class", msg["message"])
	assert.Equal(t, "Student 1", msg["username"])
	assert.NotZero(t, msg["id"])
	assert.NotEmpty(t, msg["timestamp"])

	ack := student.next()
	assert.Equal(t, TypeChatAck, ack["type"], "sender gets an ack, not its own broadcast")
	assert.Equal(t, msg["id"], ack["id"])
	assert.Equal(t, msg["timestamp"], ack["timestamp"])
	student.expectNone(100 * time.Millisecond)
}

func TestSpoofedSenderRejected(t *testing.T) {
	h := newHarness(t)
	student := h.join(t, h.f.Student(0).ID)

	student.send(map[string]any{"type": TypeChatMessage, "message": "hi", "user_id": h.f.Trainer.ID})
	msg := student.next()
	assert.Equal(t, TypeError, msg["type"])
	assert.Equal(t, "forbidden", msg["code"])
}

func TestRoleDemotionTakesEffectOnNextMessage(t *testing.T) {
	h := newHarness(t)
	trainer := h.join(t, h.f.Trainer.ID)
	student := h.join(t, h.f.Student(0).ID)
	trainer.next()

	trainer.send(map[string]any{"type": TypeWhiteboardUpdate, "data": map[string]any{"shapes": []int{1}}})
	msg := student.next()
	assert.Equal(t, TypeWhiteboardUpdate, msg["type"])
	assert.Equal(t, map[string]any{"shapes": []any{float64(1)}}, msg["data"])
	trainer.expectNone(50 * time.Millisecond)

	_, err := h.controller.SetParticipantRole(context.Background(), h.f.Meeting.ID, h.f.Admin.ID, h.f.Trainer.ID, model.MeetingRoleParticipant)
	require.NoError(t, err)

	trainer.send(map[string]any{"type": TypeWhiteboardUpdate, "data": map[string]any{"shapes": []int{2}}})
	msg = trainer.next()
	assert.Equal(t, TypeError, msg["type"])
	assert.Equal(t, "forbidden", msg["code"])
	student.expectNone(100 * time.Millisecond)

	student.send(map[string]any{"type": TypeWhiteboardUpdate, "data": "x"})
	assert.Equal(t, "forbidden", student.next()["code"])
}

func TestParticipantUpdateIsPartial(t *testing.T) {
	h := newHarness(t)
	trainer := h.join(t, h.f.Trainer.ID)
	student := h.join(t, h.f.Student(0).ID)
	trainer.next()
	studentID := h.f.Student(0).ID

	student.send(map[string]any{"type": TypeParticipantUpdate, "user_id": studentID, "is_muted": true})
	msg := trainer.next()
	assert.Equal(t, TypeParticipantUpdate, msg["type"])
	assert.Equal(t, true, msg["is_muted"])
	assert.NotContains(t, msg, "raise_hand")

	student.send(map[string]any{"type": TypeParticipantUpdate, "raise_hand": true})
	msg = trainer.next()
	assert.Equal(t, true, msg["raise_hand"])

	p := h.f.Participant(t, studentID)
	assert.True(t, p.IsMuted)
	assert.True(t, p.RaiseHand)
	assert.False(t, p.VideoEnabled)

	student.send(map[string]any{"type": TypeParticipantUpdate, "user_id": h.f.Trainer.ID, "is_muted": true})
	assert.Equal(t, "forbidden", student.next()["code"])
	assert.False(t, h.f.Participant(t, h.f.Trainer.ID).IsMuted)
}

func TestScreenShare(t *testing.T) {
	h := newHarness(t)
	trainer := h.join(t, h.f.Trainer.ID)
	student := h.join(t, h.f.Student(0).ID)
	trainer.next()

	student.send(map[string]any{"type": TypeScreenShare, "active": true})
	msg := trainer.next()
	assert.Equal(t, TypeScreenShare, msg["type"])
	assert.Equal(t, true, msg["active"])
	assert.True(t, h.f.Participant(t, h.f.Student(0).ID).ScreenSharing)

	student.send(map[string]any{"type": TypeScreenShare})
	assert.Equal(t, "validation", student.next()["code"])
}

func TestUnknownAndMalformedMessages(t *testing.T) {
	h := newHarness(t)
	student := h.join(t, h.f.Student(0).ID)

	student.send(map[string]any{"type": "dance", "moves": 3})
	student.send(map[string]any{"type": TypeChatMessage, "message": "still here"})
	assert.Equal(t, TypeChatAck, student.next()["type"], "unknown types produce no reply")

	student.sendRaw([]byte(`{not json`))
	msg := student.next()
	assert.Equal(t, TypeError, msg["type"])
	assert.Equal(t, "validation", msg["code"])
}

func TestMessagesBeforeJoinAreRejected(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t, h.f.Meeting.ID, h.f.Student(0).ID)

	c.send(map[string]any{"type": TypeChatMessage, "message": "too early"})
	msg := c.next()
	assert.Equal(t, "forbidden", msg["code"])
	assert.Equal(t, 0, h.registry.Count(h.f.Meeting.ID))
}

func TestJoinRejectedForOutsider(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t, h.f.Meeting.ID, h.f.Outsider.ID)

	c.send(map[string]any{"type": TypeJoin})
	msg := c.next()
	assert.Equal(t, "forbidden", msg["code"])
	assert.Equal(t, TypeJoin, msg["request_type"])
	assert.Equal(t, 0, h.registry.Count(h.f.Meeting.ID))
	assert.Equal(t, model.MeetingStatusScheduled, h.f.Reload(t).Status)
}

func TestMissingMeetingClosesConnection(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t, "no-such-meeting", h.f.Student(0).ID)

	c.send(map[string]any{"type": TypeJoin})
	msg := c.next()
	assert.Equal(t, "not_found", msg["code"])
	c.waitClosed()
}

func TestDisconnectRunsClosePath(t *testing.T) {
	h := newHarness(t)
	trainer := h.join(t, h.f.Trainer.ID)
	student := h.join(t, h.f.Student(0).ID)
	trainer.next()
	studentID := h.f.Student(0).ID

	student.hangup()

	msg := trainer.next()
	assert.Equal(t, TypeParticipantLeft, msg["type"])
	assert.EqualValues(t, studentID, msg["user_id"])

	p := h.f.Participant(t, studentID)
	assert.False(t, p.IsPresent)
	assert.NotNil(t, p.LeaveTime)
	assert.False(t, h.presence.isOnline(studentID))
	assert.Equal(t, 1, h.registry.Count(h.f.Meeting.ID))
	assert.Equal(t, 1, h.gateway.Connections())
}

func TestSecondConnectionOfSameUser(t *testing.T) {
	h := newHarness(t)
	trainer := h.join(t, h.f.Trainer.ID)
	first := h.join(t, h.f.Student(0).ID)
	assert.Equal(t, TypeParticipantJoined, trainer.next()["type"])

	h.join(t, h.f.Student(0).ID)
	trainer.expectNone(100 * time.Millisecond)

	first.hangup()
	trainer.expectNone(100 * time.Millisecond)
	assert.True(t, h.f.Participant(t, h.f.Student(0).ID).IsPresent)
}

func TestConcurrentJoinsOfSameUserAnnounceOnce(t *testing.T) {
	h := newHarness(t)
	trainer := h.join(t, h.f.Trainer.ID)
	studentID := h.f.Student(0).ID

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		c := h.connect(t, h.f.Meeting.ID, studentID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.send(map[string]any{"type": TypeJoin})
		}()
	}
	wg.Wait()
	require.Eventually(t, func() bool {
		return h.registry.Count(h.f.Meeting.ID) == 5
	}, 2*time.Second, 5*time.Millisecond)

	msg := trainer.next()
	assert.Equal(t, TypeParticipantJoined, msg["type"])
	assert.EqualValues(t, studentID, msg["user_id"])
	trainer.expectNone(100 * time.Millisecond)
}

func TestLastConnectionOfSameUserAnnouncesLeave(t *testing.T) {
	h := newHarness(t)
	trainer := h.join(t, h.f.Trainer.ID)
	studentID := h.f.Student(0).ID
	first := h.join(t, studentID)
	second := h.join(t, studentID)
	assert.Equal(t, TypeParticipantJoined, trainer.next()["type"])

	first.hangup()
	second.hangup()

	msg := trainer.next()
	assert.Equal(t, TypeParticipantLeft, msg["type"])
	assert.EqualValues(t, studentID, msg["user_id"])
	trainer.expectNone(100 * time.Millisecond)
	assert.False(t, h.f.Participant(t, studentID).IsPresent)
}

func TestDropDuringJoinRecordsLeave(t *testing.T) {
	h := newHarness(t)
	trainerID := h.f.Trainer.ID

	// 참가자 기록은 커밋되고, 미팅 상태 갱신 중에 연결이 끊긴다
	var once sync.Once
	err := h.f.DB.Callback().Update().After("gorm:update").Register("test:drop_during_join", func(db *gorm.DB) {
		if db.Statement.Table != "meetings" {
			return
		}
		once.Do(func() {
			h.gateway.Shutdown()
			_ = db.AddError(context.Canceled)
		})
	})
	require.NoError(t, err)

	c := h.connect(t, h.f.Meeting.ID, trainerID)
	c.send(map[string]any{"type": TypeJoin})
	c.waitClosed()

	p := h.f.Participant(t, trainerID)
	assert.False(t, p.IsPresent)
	assert.NotNil(t, p.LeaveTime)
	assert.Equal(t, 0, h.registry.Count(h.f.Meeting.ID))
	assert.Equal(t, 0, h.gateway.Connections())
	assert.False(t, h.presence.isOnline(trainerID))
	assert.Empty(t, h.gateway.claims)
}

func TestEndMeetingNotifiesAndCloses(t *testing.T) {
	h := newHarness(t)
	trainer := h.join(t, h.f.Trainer.ID)
	student := h.join(t, h.f.Student(0).ID)
	trainer.next()

	_, err := h.controller.End(context.Background(), h.f.Meeting.ID, h.f.Trainer.ID)
	require.NoError(t, err)
	flushedAt := h.f.Participant(t, h.f.Student(0).ID).LeaveTime
	require.NotNil(t, flushedAt)

	assert.Equal(t, 2, h.gateway.Notify(h.f.Meeting.ID, MeetingEnded(h.f.Meeting.ID)))
	assert.Equal(t, 2, h.gateway.CloseMeeting(h.f.Meeting.ID))

	for _, c := range []*client{trainer, student} {
		msg := c.next()
		assert.Equal(t, TypeMeetingEnded, msg["type"])
		assert.Equal(t, h.f.Meeting.ID, msg["meeting_id"])
		c.waitClosed()
	}

	p := h.f.Participant(t, h.f.Student(0).ID)
	assert.False(t, p.IsPresent)
	assert.True(t, p.LeaveTime.Equal(*flushedAt), "end-of-meeting leave time is kept")
	assert.Equal(t, 0, h.registry.Count(h.f.Meeting.ID))
}

func TestSessionSendOverflow(t *testing.T) {
	s := newSession(context.Background(), newFakeConn(), "m1", 1, 1)

	require.NoError(t, s.Send([]byte("first")))
	assert.ErrorIs(t, s.Send([]byte("second")), registry.ErrPeerGone)
	assert.Error(t, s.Context().Err(), "overflow cancels the session")

	assert.Equal(t, StateConnecting, s.markClosed())
	assert.ErrorIs(t, s.Send([]byte("third")), registry.ErrPeerGone)
	assert.Equal(t, StateClosed, s.markClosed())
	assert.True(t, s.IsClosed())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "joined", StateJoined.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}
