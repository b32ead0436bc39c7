// Package memory 提供进程内的存储实现，用于本地开发和测试
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/jacl-coder/PixelStream-Server/internal/store"
)

type participantKey struct {
	sessionID string
	userID    string
}

// dataset 一份完整的数据快照，事务在副本上修改，提交时整体替换
type dataset struct {
	users        map[string]models.UserProfile
	usersByExt   map[string]string
	games        map[int64]models.Game
	nextGameID   int64
	sessions     map[string]models.GameSession
	participants map[participantKey]models.Participant
	history      map[string]models.SessionHistory
	chat         map[string][]models.ChatMessage
}

func newDataset() *dataset {
	return &dataset{
		users:        make(map[string]models.UserProfile),
		usersByExt:   make(map[string]string),
		games:        make(map[int64]models.Game),
		sessions:     make(map[string]models.GameSession),
		participants: make(map[participantKey]models.Participant),
		history:      make(map[string]models.SessionHistory),
		chat:         make(map[string][]models.ChatMessage),
	}
}

func (d *dataset) clone() *dataset {
	return &dataset{
		users:        maps.Clone(d.users),
		usersByExt:   maps.Clone(d.usersByExt),
		games:        maps.Clone(d.games),
		nextGameID:   d.nextGameID,
		sessions:     maps.Clone(d.sessions),
		participants: maps.Clone(d.participants),
		history:      maps.Clone(d.history),
		chat:         maps.Clone(d.chat),
	}
}

// Store 内存存储，所有事务串行执行
type Store struct {
	mu   sync.Mutex
	data *dataset
	now  func() time.Time
}

// New 创建内存存储
func New() *Store {
	return &Store{data: newDataset(), now: time.Now}
}

// InTx 在数据副本上执行 fn，成功后提交
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{d: s.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = tx.d
	return nil
}

// UpsertUser 按外部ID插入或刷新用户
func (s *Store) UpsertUser(ctx context.Context, user *models.UserProfile) (*models.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.data.usersByExt[user.ExternalID]; ok {
		existing := s.data.users[id]
		existing.LastSeen = now
		s.data.users[id] = existing
		return &existing, nil
	}

	created := *user
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	created.CreatedAt = now
	created.LastSeen = now
	s.data.users[created.ID] = created
	s.data.usersByExt[created.ExternalID] = created.ID
	return &created, nil
}

// GetUser 获取用户
func (s *Store) GetUser(ctx context.Context, id string) (*models.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.data.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

// SetUserOnline 更新在线标记
func (s *Store) SetUserOnline(ctx context.Context, id string, online bool, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.data.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Online = online
	u.LastSeen = at
	s.data.users[id] = u
	return nil
}

// GetGame 获取游戏
func (s *Store) GetGame(ctx context.Context, id int64) (*models.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.data.games[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &g, nil
}

// ListGames 列出游戏目录
func (s *Store) ListGames(ctx context.Context) ([]models.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	games := slices.Collect(maps.Values(s.data.games))
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	return games, nil
}

// CreateGame 添加游戏，ID 为 0 时自动分配
func (s *Store) CreateGame(ctx context.Context, game *models.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if game.ID == 0 {
		s.data.nextGameID++
		game.ID = s.data.nextGameID
	} else if game.ID > s.data.nextGameID {
		s.data.nextGameID = game.ID
	}
	s.data.games[game.ID] = *game
	return nil
}

// GetSession 获取会话
func (s *Store) GetSession(ctx context.Context, id string) (*models.GameSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.data.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sess, nil
}

// GetSessionByJoinCode 按邀请码查找会话
func (s *Store) GetSessionByJoinCode(ctx context.Context, code string) (*models.GameSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.data.sessions {
		if sess.JoinCode != "" && sess.JoinCode == code {
			return &sess, nil
		}
	}
	return nil, store.ErrNotFound
}

// ListOpenPublicSessions 列出公开的进行中会话
func (s *Store) ListOpenPublicSessions(ctx context.Context, filter store.SessionFilter) ([]models.GameSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.GameSession
	for _, sess := range s.data.sessions {
		if sess.IsPrivate || !sess.Status.IsOpen() {
			continue
		}
		if filter.GameID != nil && sess.GameID != *filter.GameID {
			continue
		}
		result = append(result, sess)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.After(result[j].StartedAt) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// ListParticipants 列出会话参与者
func (s *Store) ListParticipants(ctx context.Context, sessionID string, presentOnly bool) ([]models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return listParticipants(s.data, sessionID, presentOnly), nil
}

// GetHistory 获取会话汇总
func (s *Store) GetHistory(ctx context.Context, sessionID string) (*models.SessionHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.data.history[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &h, nil
}

// ListChatMessages 分页读取聊天记录
func (s *Store) ListChatMessages(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.ChatMessage
	for _, m := range s.data.chat[sessionID] {
		if m.Seq <= afterSeq {
			continue
		}
		result = append(result, m)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Close 内存存储无需关闭
func (s *Store) Close() error {
	return nil
}

func listParticipants(d *dataset, sessionID string, presentOnly bool) []models.Participant {
	var result []models.Participant
	for key, p := range d.participants {
		if key.sessionID != sessionID {
			continue
		}
		if presentOnly && !p.IsPresent() {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].JoinedAt.Before(result[j].JoinedAt) })
	return result
}

// memTx 事务视图
type memTx struct {
	d *dataset
}

func (t *memTx) IncrementPlayCount(_ context.Context, gameID int64) error {
	g, ok := t.d.games[gameID]
	if !ok {
		return store.ErrNotFound
	}
	g.PlayCount++
	t.d.games[gameID] = g
	return nil
}

func (t *memTx) OwnerHasOpenSession(_ context.Context, ownerID string) (bool, error) {
	for _, sess := range t.d.sessions {
		if sess.OwnerID == ownerID && sess.Status.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertSession(_ context.Context, session *models.GameSession) error {
	for _, existing := range t.d.sessions {
		if session.JoinCode != "" && existing.JoinCode == session.JoinCode {
			return store.ErrJoinCodeTaken
		}
		if existing.OwnerID == session.OwnerID && existing.Status.IsOpen() && session.Status.IsOpen() {
			return store.ErrOwnerBusy
		}
	}
	t.d.sessions[session.ID] = *session
	return nil
}

func (t *memTx) LockSession(_ context.Context, id string) (*models.GameSession, error) {
	sess, ok := t.d.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sess, nil
}

func (t *memTx) UpdateSession(_ context.Context, session *models.GameSession) error {
	if _, ok := t.d.sessions[session.ID]; !ok {
		return store.ErrNotFound
	}
	t.d.sessions[session.ID] = *session
	return nil
}

func (t *memTx) GetParticipant(_ context.Context, sessionID, userID string) (*models.Participant, error) {
	p, ok := t.d.participants[participantKey{sessionID, userID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) SaveParticipant(_ context.Context, p *models.Participant) error {
	t.d.participants[participantKey{p.SessionID, p.UserID}] = *p
	return nil
}

func (t *memTx) ListPresentParticipants(_ context.Context, sessionID string) ([]models.Participant, error) {
	return listParticipants(t.d, sessionID, true), nil
}

func (t *memTx) CountParticipants(_ context.Context, sessionID string) (int, error) {
	return len(listParticipants(t.d, sessionID, false)), nil
}

func (t *memTx) InsertHistory(_ context.Context, history *models.SessionHistory) error {
	if _, ok := t.d.history[history.SessionID]; ok {
		return fmt.Errorf("会话 %s 的汇总已存在", history.SessionID)
	}
	t.d.history[history.SessionID] = *history
	return nil
}

func (t *memTx) InsertChatMessage(_ context.Context, msg *models.ChatMessage) error {
	msgs := slices.Clone(t.d.chat[msg.SessionID])
	t.d.chat[msg.SessionID] = append(msgs, *msg)
	return nil
}
