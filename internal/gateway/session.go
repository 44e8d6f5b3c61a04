package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/oklog/ulid/v2"

	"classroom-backend/internal/registry"
)

// State WebSocket 연결 상태
type State int

const (
	StateConnecting State = iota // join 대기
	StateJoined                  // 룸 등록 완료
	StateClosed                  // 연결 종료
)

// String 상태를 문자열로 반환
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn 세션이 사용하는 WebSocket 연결 (*websocket.Conn 이 구현)
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Session 클라이언트 연결 하나 (Thread-Safe)
//
// Send 는 버퍼 채널에 넣기만 하고, 실제 쓰기는 writePump 고루틴 하나가 담당한다.
type Session struct {
	MeetingID   string
	UserID      int64
	ConnectedAt time.Time

	id    string
	conn  Conn
	state State
	mu    sync.RWMutex

	send       chan []byte
	sendClosed bool
	writerDone chan struct{}

	claimed bool // 출석 기록에 관여 중인지, Gateway.mu 로 보호

	ctx    context.Context
	cancel context.CancelFunc
}

// newSession 새 세션 생성
func newSession(parent context.Context, conn Conn, meetingID string, userID int64, bufferSize int) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:          ulid.Make().String(),
		MeetingID:   meetingID,
		UserID:      userID,
		ConnectedAt: time.Now(),
		conn:        conn,
		state:       StateConnecting,
		send:        make(chan []byte, bufferSize),
		writerDone:  make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID 연결 식별자 (ULID)
func (s *Session) ID() string {
	return s.id
}

// Context 세션 컨텍스트 (연결이 끊기면 취소됨)
func (s *Session) Context() context.Context {
	return s.ctx
}

// Send 전송 큐에 추가, 큐가 가득 차거나 닫혔으면 registry.ErrPeerGone
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendClosed {
		return registry.ErrPeerGone
	}
	select {
	case s.send <- data:
		return nil
	default:
		// 느린 클라이언트는 끊는다
		s.cancel()
		return registry.ErrPeerGone
	}
}

// GetState 현재 상태 조회
func (s *Session) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// markJoined joined 로 전환, 이미 joined 였으면 true
func (s *Session) markJoined() (alreadyJoined bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateJoined:
		return true, true
	case StateClosed:
		return false, false
	}
	s.state = StateJoined
	return false, true
}

// markClosed closed 로 전환하고 전송 큐를 닫는다, 직전 상태 반환
func (s *Session) markClosed() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	if prev == StateClosed {
		return prev
	}
	s.state = StateClosed
	s.sendClosed = true
	close(s.send)
	s.cancel()
	return prev
}

// IsClosed 세션 종료 여부 확인
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state == StateClosed
}

// Duration 연결 유지 시간
func (s *Session) Duration() time.Duration {
	return time.Since(s.ConnectedAt)
}

// readPump 수신 루프, 에러가 나면 세션을 취소하고 inbound 를 닫는다
func (s *Session) readPump(inbound chan<- []byte, pongWait time.Duration, onPong func()) {
	defer close(inbound)
	defer s.cancel()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		if onPong != nil {
			onPong()
		}
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != websocket.TextMessage {
			continue
		}

		select {
		case inbound <- data:
		case <-s.ctx.Done():
			return
		}
	}
}

// writePump 전송 루프, 큐가 닫히면 남은 메시지를 모두 쓰고 close 프레임을 보낸다
func (s *Session) writePump(writeWait, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(s.writerDone)
	}()

	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.cancel()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		}
	}
}
