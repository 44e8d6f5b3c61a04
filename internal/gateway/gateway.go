// Package gateway 강의실 WebSocket 연결 처리
//
// 연결마다 Session 하나가 만들어지고, 수신 메시지는 연결 고루틴에서 순서대로 처리된다.
// 모든 메시지는 처리 직전에 lifecycle.Controller 를 통해 현재 DB 상태로 권한을 다시 검사한다.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/config"
	"classroom-backend/internal/lifecycle"
	"classroom-backend/internal/metrics"
	"classroom-backend/internal/registry"
)

// PresenceMirror 접속자 목록 외부 미러 (presence.Manager 가 구현)
type PresenceMirror interface {
	MarkOnline(ctx context.Context, meetingID string, userID int64) error
	Refresh(ctx context.Context, meetingID string, userID int64) error
	MarkOffline(ctx context.Context, meetingID string, userID int64) error
}

// Config 연결 타이밍/버퍼 설정
type Config struct {
	SendBufferSize int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	CloseTimeout   time.Duration // 종료 처리(DB 퇴장 기록 등)에 쓰는 제한 시간
}

// ConfigFrom WebSocket 설정에서 변환
func ConfigFrom(ws config.WebSocketConfig) Config {
	return Config{
		SendBufferSize: ws.SendBufferSize,
		WriteWait:      ws.WriteTimeout,
		PongWait:       ws.PongWait,
		PingPeriod:     ws.PingPeriod,
		MaxMessageSize: ws.MaxMessageSize,
	}
}

func (c Config) withDefaults() Config {
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = 256
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 512 * 1024
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 5 * time.Second
	}
	return c
}

// Gateway 강의실 실시간 게이트웨이
type Gateway struct {
	registry   *registry.Registry
	controller *lifecycle.Controller
	presence   PresenceMirror
	cfg        Config
	logger     *slog.Logger

	sessions map[string]*Session
	claims   map[claimKey]*claim
	mu       sync.Mutex
}

type claimKey struct {
	meetingID string
	userID    int64
}

// claim 같은 사용자의 연결들이 공유하는 출석 상태
type claim struct {
	sessions  int  // join 을 시도했거나 완료한 연결 수
	announced bool // participant_joined 를 이미 보냈는지
}

// New Gateway 생성, presence 는 nil 이면 미러링하지 않는다
func New(reg *registry.Registry, controller *lifecycle.Controller, presence PresenceMirror, cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		registry:   reg,
		controller: controller,
		presence:   presence,
		cfg:        cfg.withDefaults(),
		logger:     logger.With("component", "gateway"),
		sessions:   make(map[string]*Session),
		claims:     make(map[claimKey]*claim),
	}
}

// Serve 연결 하나를 끝날 때까지 처리 (호출한 고루틴이 디스패처가 된다)
func (g *Gateway) Serve(conn Conn, meetingID string, userID int64) {
	s := newSession(context.Background(), conn, meetingID, userID, g.cfg.SendBufferSize)
	conn.SetReadLimit(g.cfg.MaxMessageSize)

	g.track(s)
	metrics.ConnectionsActive.Inc()
	log := g.logger.With("session_id", s.ID(), "meeting_id", meetingID, "user_id", userID)
	log.Info("🔌 classroom connection opened")

	inbound := make(chan []byte)
	go s.writePump(g.cfg.WriteWait, g.cfg.PingPeriod)
	go s.readPump(inbound, g.cfg.PongWait, func() { g.refreshPresence(s) })

loop:
	for {
		select {
		case <-s.ctx.Done():
			break loop
		case data, ok := <-inbound:
			if !ok {
				break loop
			}
			g.dispatch(s, data)
		}
	}

	g.closeSession(s)

	select {
	case <-s.writerDone:
	case <-time.After(g.cfg.WriteWait):
		log.Warn("writer did not finish in time")
	}
	_ = conn.Close()

	metrics.ConnectionsActive.Dec()
	log.Info("🔌 classroom connection closed", "duration", s.Duration().String())
}

// dispatch 수신 메시지 하나 처리
func (g *Gateway) dispatch(s *Session, data []byte) {
	start := time.Now()

	msg, msgType, err := decodeInbound(data)
	if err != nil {
		g.reply(s, msgType, err)
		metrics.RecordEnvelope(metricLabel(msgType, msg), apperr.Code(err), time.Since(start))
		return
	}
	if msg == nil {
		// 모르는 타입은 무시
		metrics.RecordEnvelope("unknown", "ignored", time.Since(start))
		return
	}

	if _, isJoin := msg.(*joinMessage); !isJoin && s.GetState() != StateJoined {
		err = apperr.Forbidden(msgType, "join the meeting first")
	} else {
		switch m := msg.(type) {
		case *joinMessage:
			err = g.handleJoin(s, m)
		case *chatMessage:
			err = g.handleChat(s, m)
		case *whiteboardUpdate:
			err = g.handleWhiteboard(s, m)
		case *participantUpdate:
			err = g.handleParticipantUpdate(s, m)
		case *screenShare:
			err = g.handleScreenShare(s, m)
		}
	}

	g.finish(s, msgType, err)
	metrics.RecordEnvelope(msgType, resultLabel(err), time.Since(start))
}

// finish 처리 결과에 따라 오류 전송/연결 종료
func (g *Gateway) finish(s *Session, msgType string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// 연결이 끊기는 중
	case apperr.IsNotFoundOf(err, "meeting"):
		g.reply(s, msgType, err)
		s.cancel()
	case apperr.IsValidation(err) || apperr.IsAuthorization(err) || apperr.IsNotFound(err):
		g.reply(s, msgType, err)
	default:
		g.logger.Error("handler failed",
			"session_id", s.ID(), "meeting_id", s.MeetingID, "user_id", s.UserID, "type", msgType, "error", err)
	}
}

// reply 보낸 연결에만 오류 전송
func (g *Gateway) reply(s *Session, msgType string, err error) {
	data, mErr := json.Marshal(errorFrame(msgType, err))
	if mErr != nil {
		return
	}
	_ = s.Send(data)
}

// checkSender 메시지의 user_id 가 인증된 사용자와 같은지 (비어 있으면 통과)
func checkSender(s *Session, action string, userID int64) error {
	if userID != 0 && userID != s.UserID {
		return apperr.Forbidden(action, "user_id does not match the authenticated user")
	}
	return nil
}

func (g *Gateway) handleJoin(s *Session, m *joinMessage) error {
	if err := checkSender(s, TypeJoin, m.UserID); err != nil {
		return err
	}

	// Join 이 참가자를 기록한 뒤 연결이 끊겨도 closeSession 이 퇴장을 남기도록 먼저 등록
	g.claim(s)
	res, err := g.controller.Join(s.ctx, s.MeetingID, s.UserID, m.Secret)
	if err != nil {
		return err
	}

	alreadyJoined, ok := s.markJoined()
	if !ok {
		return nil
	}
	g.registry.Join(s.MeetingID, s)
	g.markOnline(s)

	if res.WentLive {
		g.logger.Info("🟢 meeting went live", "meeting_id", s.MeetingID, "user_id", s.UserID)
	}
	if alreadyJoined || !g.announce(s) {
		return nil
	}
	g.registry.Broadcast(s.MeetingID, ParticipantJoined(res.User), s)
	return nil
}

func (g *Gateway) handleChat(s *Session, m *chatMessage) error {
	if err := checkSender(s, TypeChatMessage, m.UserID); err != nil {
		return err
	}

	res, err := g.controller.SendChat(s.ctx, s.MeetingID, s.UserID, m.Message, m.ParentID)
	if err != nil {
		return err
	}
	g.registry.Broadcast(s.MeetingID, ChatMessageFrom(res.Message, res.User), s)

	ack, err := json.Marshal(ChatAck(res.Message, res.User))
	if err != nil {
		return err
	}
	_ = s.Send(ack)
	return nil
}

func (g *Gateway) handleWhiteboard(s *Session, m *whiteboardUpdate) error {
	if err := checkSender(s, TypeWhiteboardUpdate, m.UserID); err != nil {
		return err
	}
	if !m.hasData() {
		return apperr.Validation("data", "must not be empty")
	}

	snapshot, err := g.controller.UpdateWhiteboard(s.ctx, s.MeetingID, s.UserID, string(m.Data))
	if err != nil {
		return err
	}
	g.registry.Broadcast(s.MeetingID, WhiteboardUpdated(snapshot), s)
	return nil
}

func (g *Gateway) handleParticipantUpdate(s *Session, m *participantUpdate) error {
	target := m.UserID
	if target == 0 {
		target = s.UserID
	}

	patch := lifecycle.SelfPatch{RaiseHand: m.RaiseHand, IsMuted: m.IsMuted, VideoEnabled: m.VideoEnabled}
	if _, err := g.controller.UpdateSelf(s.ctx, s.MeetingID, s.UserID, target, patch); err != nil {
		return err
	}

	g.registry.Broadcast(s.MeetingID, ParticipantUpdateEvent{
		Type:         TypeParticipantUpdate,
		UserID:       s.UserID,
		RaiseHand:    m.RaiseHand,
		IsMuted:      m.IsMuted,
		VideoEnabled: m.VideoEnabled,
	}, s)
	return nil
}

func (g *Gateway) handleScreenShare(s *Session, m *screenShare) error {
	if err := checkSender(s, TypeScreenShare, m.UserID); err != nil {
		return err
	}
	if m.Active == nil {
		return apperr.Validation("active", "is required")
	}

	if _, err := g.controller.ShareScreen(s.ctx, s.MeetingID, s.UserID, *m.Active); err != nil {
		return err
	}
	g.registry.Broadcast(s.MeetingID, ScreenShared(s.UserID, *m.Active), s)
	return nil
}

// closeSession 종료 처리, 세션당 한 번만 실행된다
//
// join 도중에 끊긴 연결도 참가자 기록이 남았을 수 있으므로 퇴장을 기록한다.
// 세션 컨텍스트는 이미 취소된 상태이므로 별도의 제한 시간 컨텍스트를 쓴다.
func (g *Gateway) closeSession(s *Session) {
	prev := s.markClosed()
	if prev == StateClosed {
		return
	}
	g.untrack(s)

	if prev == StateJoined {
		g.registry.Leave(s.MeetingID, s)
	}
	last, announced := g.release(s)
	if !last {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.CloseTimeout)
	defer cancel()

	if _, err := g.controller.Leave(ctx, s.MeetingID, s.UserID); err != nil && !apperr.IsNotFound(err) {
		g.logger.Error("record leave failed", "meeting_id", s.MeetingID, "user_id", s.UserID, "error", err)
	}
	if !announced {
		return
	}
	if g.presence != nil {
		if err := g.presence.MarkOffline(ctx, s.MeetingID, s.UserID); err != nil {
			g.logger.Warn("presence offline failed", "meeting_id", s.MeetingID, "user_id", s.UserID, "error", err)
		}
	}
	g.registry.Broadcast(s.MeetingID, ParticipantLeft(s.UserID), nil)
}

// Notify 연결 밖(HTTP)에서 생긴 이벤트를 룸 전체에 전달
func (g *Gateway) Notify(meetingID string, event any) int {
	return g.registry.Broadcast(meetingID, event, nil)
}

// CloseMeeting 미팅의 모든 연결 종료 (이미 큐에 들어간 메시지는 전송된다)
func (g *Gateway) CloseMeeting(meetingID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	closed := 0
	for _, s := range g.sessions {
		if s.MeetingID == meetingID {
			s.cancel()
			closed++
		}
	}
	return closed
}

// Shutdown 모든 연결 종료 (서버 종료 시)
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, s := range g.sessions {
		s.cancel()
	}
	g.logger.Info("gateway shutdown", "sessions", len(g.sessions))
}

// Connections 열린 연결 수
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.sessions)
}

func (g *Gateway) track(s *Session) {
	g.mu.Lock()
	g.sessions[s.ID()] = s
	g.mu.Unlock()
}

func (g *Gateway) untrack(s *Session) {
	g.mu.Lock()
	delete(g.sessions, s.ID())
	g.mu.Unlock()
}

// claim 세션을 사용자의 출석 상태에 등록 (세션당 한 번)
func (g *Gateway) claim(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if s.claimed {
		return
	}
	key := claimKey{meetingID: s.MeetingID, userID: s.UserID}
	c, ok := g.claims[key]
	if !ok {
		c = &claim{}
		g.claims[key] = c
	}
	c.sessions++
	s.claimed = true
}

// announce 사용자의 첫 입장이면 true, 같은 사용자의 다른 연결은 false
func (g *Gateway) announce(s *Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.claims[claimKey{meetingID: s.MeetingID, userID: s.UserID}]
	if !ok || c.announced {
		return false
	}
	c.announced = true
	return true
}

// release 세션을 출석 상태에서 제거, 사용자의 마지막 연결이면 last=true
func (g *Gateway) release(s *Session) (last, announced bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !s.claimed {
		return false, false
	}
	s.claimed = false

	key := claimKey{meetingID: s.MeetingID, userID: s.UserID}
	c, ok := g.claims[key]
	if !ok {
		return false, false
	}
	c.sessions--
	if c.sessions > 0 {
		return false, false
	}
	delete(g.claims, key)
	return true, c.announced
}

func (g *Gateway) markOnline(s *Session) {
	if g.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	if err := g.presence.MarkOnline(ctx, s.MeetingID, s.UserID); err != nil {
		g.logger.Warn("presence online failed", "meeting_id", s.MeetingID, "user_id", s.UserID, "error", err)
	}
}

// refreshPresence pong 수신 시 TTL 연장, 키가 만료됐으면 다시 등록
func (g *Gateway) refreshPresence(s *Session) {
	if g.presence == nil || s.GetState() != StateJoined {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	if err := g.presence.Refresh(ctx, s.MeetingID, s.UserID); err != nil {
		if err := g.presence.MarkOnline(ctx, s.MeetingID, s.UserID); err != nil {
			g.logger.Debug("presence refresh failed", "meeting_id", s.MeetingID, "user_id", s.UserID, "error", err)
		}
	}
}

func metricLabel(msgType string, msg inbound) string {
	if msg != nil || msgType == TypeJoin || msgType == TypeChatMessage || msgType == TypeWhiteboardUpdate ||
		msgType == TypeParticipantUpdate || msgType == TypeScreenShare {
		return msgType
	}
	return "invalid"
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.Code(err)
}
