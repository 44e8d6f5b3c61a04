// Package registry 미팅 id → 접속 중인 연결 목록 (프로세스 로컬)
package registry

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"classroom-backend/internal/metrics"
)

// ErrPeerGone 더 이상 메시지를 받을 수 없는 연결
var ErrPeerGone = errors.New("peer is gone")

// Peer 브로드캐스트 대상 연결 핸들
type Peer interface {
	ID() string
	Send(data []byte) error
}

// Registry 미팅별 룸 관리
//
// 룸 조회/생성/삭제만 mu 로 보호하고, 한 룸의 멤버 변경과 브로드캐스트는
// 그 룸의 mu 하나로 직렬화한다. 서로 다른 미팅은 잠금을 공유하지 않는다.
type Registry struct {
	rooms  map[string]*room
	mu     sync.RWMutex
	logger *slog.Logger
}

// room 한 미팅에 등록된 연결들
type room struct {
	meetingID string
	peers     map[string]Peer
	closed    bool // Leave 가 맵에서 제거한 룸
	mu        sync.Mutex
}

// New Registry 생성
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms:  make(map[string]*room),
		logger: logger.With("component", "registry"),
	}
}

// getOrCreateRoom 룸 조회 또는 생성
func (r *Registry) getOrCreateRoom(meetingID string) *room {
	r.mu.RLock()
	rm, ok := r.rooms[meetingID]
	r.mu.RUnlock()
	if ok {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok = r.rooms[meetingID]; ok {
		return rm
	}
	rm = &room{meetingID: meetingID, peers: make(map[string]Peer)}
	r.rooms[meetingID] = rm
	metrics.RoomsActive.Set(float64(len(r.rooms)))
	return rm
}

// Join 룸에 연결 등록 (같은 핸들로 다시 호출해도 하나만 유지)
func (r *Registry) Join(meetingID string, peer Peer) {
	for {
		rm := r.getOrCreateRoom(meetingID)
		rm.mu.Lock()
		// Leave 가 방금 빈 룸을 지웠다면 새 룸으로 다시 시도
		if !rm.closed {
			rm.peers[peer.ID()] = peer
			rm.mu.Unlock()
			return
		}
		rm.mu.Unlock()
	}
}

// Leave 룸에서 연결 제거, 빈 룸은 삭제
func (r *Registry) Leave(meetingID string, peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[meetingID]
	if !ok {
		return
	}

	rm.mu.Lock()
	delete(rm.peers, peer.ID())
	empty := len(rm.peers) == 0
	if empty {
		rm.closed = true
		delete(r.rooms, meetingID)
	}
	rm.mu.Unlock()

	if empty {
		metrics.RoomsActive.Set(float64(len(r.rooms)))
		r.logger.Debug("room closed", "meeting_id", meetingID)
	}
}

// Broadcast 룸의 모든 연결(exclude 제외)에 envelope 전달, 전달 수 반환
//
// 전송에 실패한 연결은 재시도 없이 룸에서 제거된다.
// 같은 미팅에 대한 Broadcast 호출은 호출 순서대로 전달된다.
func (r *Registry) Broadcast(meetingID string, envelope any, exclude Peer) int {
	data, err := json.Marshal(envelope)
	if err != nil {
		r.logger.Error("marshal envelope failed", "meeting_id", meetingID, "error", err)
		return 0
	}
	return r.BroadcastRaw(meetingID, data, exclude)
}

// BroadcastRaw 이미 직렬화된 메시지 브로드캐스트
func (r *Registry) BroadcastRaw(meetingID string, data []byte, exclude Peer) int {
	r.mu.RLock()
	rm, ok := r.rooms[meetingID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	excludeID := ""
	if exclude != nil {
		excludeID = exclude.ID()
	}

	rm.mu.Lock()
	delivered := 0
	var pruned []string
	for id, peer := range rm.peers {
		if id == excludeID {
			continue
		}
		if err := peer.Send(data); err != nil {
			pruned = append(pruned, id)
			continue
		}
		delivered++
	}
	for _, id := range pruned {
		delete(rm.peers, id)
		r.logger.Warn("pruned unreachable peer", "meeting_id", meetingID, "peer_id", id)
	}
	rm.mu.Unlock()

	metrics.RecordDelivery(delivered, len(pruned))
	return delivered
}

// Count 룸에 등록된 연결 수
func (r *Registry) Count(meetingID string) int {
	r.mu.RLock()
	rm, ok := r.rooms[meetingID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.peers)
}

// Peers 룸에 등록된 연결 id 목록 (정렬됨)
func (r *Registry) Peers(meetingID string) []string {
	r.mu.RLock()
	rm, ok := r.rooms[meetingID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	rm.mu.Lock()
	ids := make([]string, 0, len(rm.peers))
	for id := range rm.peers {
		ids = append(ids, id)
	}
	rm.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Rooms 활성 미팅 id 목록
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
