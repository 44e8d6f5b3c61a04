// Package presence 미팅별 접속자 목록을 Redis 에 미러링 (여러 서버 인스턴스 간 공유)
//
// DB 의 participants.is_present 가 기준 데이터이고, 여기 값은 TTL 로 만료되는 보조 정보다.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Manager Redis 기반 presence 관리자
type Manager struct {
	client   *redis.Client
	ttl      time.Duration
	serverID string
}

// NewManager 생성자
func NewManager(addr, password string, db int, ttl time.Duration, serverID string) *Manager {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return newManager(rdb, ttl, serverID)
}

func newManager(client *redis.Client, ttl time.Duration, serverID string) *Manager {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &Manager{client: client, ttl: ttl, serverID: serverID}
}

// Ping 연결 확인
func (m *Manager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close 클라이언트 종료
func (m *Manager) Close() error {
	return m.client.Close()
}

// userKey 사용자별 생존 키
func userKey(meetingID string, userID int64) string {
	return fmt.Sprintf("presence:meeting:%s:user:%d", meetingID, userID)
}

// rosterKey 미팅별 접속자 집합
func rosterKey(meetingID string) string {
	return fmt.Sprintf("presence:meeting:%s:roster", meetingID)
}

// MarkOnline 접속 표시, 사용자 키 값은 연결을 가진 서버 ID
func (m *Manager) MarkOnline(ctx context.Context, meetingID string, userID int64) error {
	pipe := m.client.TxPipeline()
	pipe.Set(ctx, userKey(meetingID, userID), m.serverID, m.ttl)
	pipe.SAdd(ctx, rosterKey(meetingID), userID)
	pipe.Expire(ctx, rosterKey(meetingID), m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark online: %w", err)
	}
	return nil
}

// Refresh 생존 신고 (pong 수신 시 TTL 연장)
func (m *Manager) Refresh(ctx context.Context, meetingID string, userID int64) error {
	pipe := m.client.TxPipeline()
	exists := pipe.Expire(ctx, userKey(meetingID, userID), m.ttl)
	pipe.Expire(ctx, rosterKey(meetingID), m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refresh presence: %w", err)
	}
	if !exists.Val() {
		return fmt.Errorf("user %d not online in meeting %s", userID, meetingID)
	}
	return nil
}

// MarkOffline 퇴장 표시
func (m *Manager) MarkOffline(ctx context.Context, meetingID string, userID int64) error {
	pipe := m.client.TxPipeline()
	pipe.Del(ctx, userKey(meetingID, userID))
	pipe.SRem(ctx, rosterKey(meetingID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark offline: %w", err)
	}
	return nil
}

// Online 미팅 접속자 조회, 만료된 사용자 키는 제외
func (m *Manager) Online(ctx context.Context, meetingID string) (map[int64]bool, error) {
	members, err := m.client.SMembers(ctx, rosterKey(meetingID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	online := make(map[int64]bool, len(members))
	if len(members) == 0 {
		return online, nil
	}

	ids := make([]int64, 0, len(members))
	keys := make([]string, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		keys = append(keys, userKey(meetingID, id))
	}
	if len(keys) == 0 {
		return online, nil
	}

	// MGET 으로 한 번에 조회
	values, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence keys: %w", err)
	}
	for i, v := range values {
		if v != nil {
			online[ids[i]] = true
		}
	}
	return online, nil
}
