// Package postgres 基于 PostgreSQL 的存储实现
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/jacl-coder/PixelStream-Server/internal/store"
	"github.com/lib/pq"
)

const (
	uniqueViolation = "23505"

	constraintJoinCode  = "uniq_session_join_code"
	constraintOwnerOpen = "uniq_open_session_per_owner"
)

// querier *sql.DB 与 *sql.Tx 的公共部分
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowScanner *sql.Row 与 *sql.Rows 的公共部分
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Store PostgreSQL存储
type Store struct {
	db *sql.DB
}

// New 使用已打开的连接创建存储
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// InTx 在读已提交事务中执行 fn，会话行通过 FOR UPDATE 串行化
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&pgTx{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// Close 关闭连接池
func (s *Store) Close() error {
	return s.db.Close()
}

const userColumns = `id, external_id, username, display_name, online, last_seen, created_at`

func scanUser(row rowScanner) (*models.UserProfile, error) {
	var u models.UserProfile
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Username, &u.DisplayName, &u.Online, &u.LastSeen, &u.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &u, nil
}

// UpsertUser 按外部ID插入用户，冲突时只刷新 last_seen
func (s *Store) UpsertUser(ctx context.Context, user *models.UserProfile) (*models.UserProfile, error) {
	id := user.ID
	if id == "" {
		id = uuid.NewString()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, external_id, username, display_name, last_seen, created_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (external_id) DO UPDATE SET last_seen = NOW()
		RETURNING `+userColumns,
		id, user.ExternalID, user.Username, user.DisplayName)
	return scanUser(row)
}

// GetUser 获取用户
func (s *Store) GetUser(ctx context.Context, id string) (*models.UserProfile, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// SetUserOnline 更新在线标记
func (s *Store) SetUserOnline(ctx context.Context, id string, online bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET online = $2, last_seen = $3 WHERE id = $1`, id, online, at)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

const gameColumns = `id, title, platform, max_players, play_count`

func scanGame(row rowScanner) (*models.Game, error) {
	var g models.Game
	if err := row.Scan(&g.ID, &g.Title, &g.Platform, &g.MaxPlayers, &g.PlayCount); err != nil {
		return nil, mapNoRows(err)
	}
	return &g, nil
}

// GetGame 获取游戏
func (s *Store) GetGame(ctx context.Context, id int64) (*models.Game, error) {
	return scanGame(s.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id))
}

// ListGames 列出游戏目录
func (s *Store) ListGames(ctx context.Context) ([]models.Game, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+gameColumns+` FROM games ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

// CreateGame 添加游戏，ID 为 0 时由数据库分配
func (s *Store) CreateGame(ctx context.Context, game *models.Game) error {
	if game.ID != 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO games (id, title, platform, max_players, play_count) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, platform = EXCLUDED.platform, max_players = EXCLUDED.max_players`,
			game.ID, game.Title, game.Platform, game.MaxPlayers, game.PlayCount)
		return err
	}
	return s.db.QueryRowContext(ctx, `
		INSERT INTO games (title, platform, max_players, play_count) VALUES ($1, $2, $3, $4) RETURNING id`,
		game.Title, game.Platform, game.MaxPlayers, game.PlayCount).Scan(&game.ID)
}

const sessionColumns = `id, game_id, owner_id, join_code, status, kind, is_private, max_players,
	current_players, spectator_count, peak_players, video_quality, fps, chat_seq,
	started_at, ended_at, last_activity`

func scanSession(row rowScanner) (*models.GameSession, error) {
	var (
		sess     models.GameSession
		joinCode sql.NullString
		endedAt  sql.NullTime
	)
	err := row.Scan(&sess.ID, &sess.GameID, &sess.OwnerID, &joinCode, &sess.Status, &sess.Kind,
		&sess.IsPrivate, &sess.MaxPlayers, &sess.CurrentPlayers, &sess.SpectatorCount,
		&sess.PeakPlayers, &sess.VideoQuality, &sess.FPS, &sess.ChatSeq,
		&sess.StartedAt, &endedAt, &sess.LastActivity)
	if err != nil {
		return nil, mapNoRows(err)
	}
	sess.JoinCode = joinCode.String
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	return &sess, nil
}

func scanSessions(rows *sql.Rows) ([]models.GameSession, error) {
	defer rows.Close()
	var result []models.GameSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sess)
	}
	return result, rows.Err()
}

// GetSession 获取会话
func (s *Store) GetSession(ctx context.Context, id string) (*models.GameSession, error) {
	return getSession(ctx, s.db, id, false)
}

// GetSessionByJoinCode 按邀请码查找会话
func (s *Store) GetSessionByJoinCode(ctx context.Context, code string) (*models.GameSession, error) {
	return scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM game_sessions WHERE join_code = $1`, code))
}

// ListOpenPublicSessions 列出公开的进行中会话
func (s *Store) ListOpenPublicSessions(ctx context.Context, filter store.SessionFilter) ([]models.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions
		WHERE is_private = false AND status IN ('starting', 'active')`
	args := []interface{}{}
	if filter.GameID != nil {
		args = append(args, *filter.GameID)
		query += fmt.Sprintf(" AND game_id = $%d", len(args))
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanSessions(rows)
}

// ListParticipants 列出会话参与者
func (s *Store) ListParticipants(ctx context.Context, sessionID string, presentOnly bool) ([]models.Participant, error) {
	return listParticipants(ctx, s.db, sessionID, presentOnly)
}

// GetHistory 获取会话汇总
func (s *Store) GetHistory(ctx context.Context, sessionID string) (*models.SessionHistory, error) {
	var h models.SessionHistory
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, game_id, owner_id, final_status, started_at, ended_at,
			duration_seconds, participant_count, peak_players
		FROM session_history WHERE session_id = $1`, sessionID).
		Scan(&h.SessionID, &h.GameID, &h.OwnerID, &h.FinalStatus, &h.StartedAt, &h.EndedAt,
			&h.DurationSeconds, &h.ParticipantCount, &h.PeakPlayers)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &h, nil
}

// ListChatMessages 分页读取聊天记录
func (s *Store) ListChatMessages(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]models.ChatMessage, error) {
	query := `SELECT session_id, seq, COALESCE(user_id::text, ''), message_type, content, created_at
		FROM chat_messages WHERE session_id = $1 AND seq > $2 ORDER BY seq`
	args := []interface{}{sessionID, afterSeq}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.SessionID, &m.Seq, &m.UserID, &m.Type, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func getSession(ctx context.Context, q querier, id string, forUpdate bool) (*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	return scanSession(q.QueryRowContext(ctx, query, id))
}

const participantColumns = `session_id, user_id, role, is_host, joined_at, left_at, duration_seconds`

func scanParticipant(row rowScanner) (*models.Participant, error) {
	var (
		p      models.Participant
		leftAt sql.NullTime
	)
	if err := row.Scan(&p.SessionID, &p.UserID, &p.Role, &p.IsHost, &p.JoinedAt, &leftAt, &p.DurationSeconds); err != nil {
		return nil, mapNoRows(err)
	}
	if leftAt.Valid {
		t := leftAt.Time
		p.LeftAt = &t
	}
	return &p, nil
}

func listParticipants(ctx context.Context, q querier, sessionID string, presentOnly bool) ([]models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM session_participants WHERE session_id = $1`
	if presentOnly {
		query += " AND left_at IS NULL"
	}
	query += " ORDER BY joined_at"

	rows, err := q.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

// pgTx 事务视图
type pgTx struct {
	q querier
}

func (t *pgTx) IncrementPlayCount(ctx context.Context, gameID int64) error {
	res, err := t.q.ExecContext(ctx, `UPDATE games SET play_count = play_count + 1 WHERE id = $1`, gameID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (t *pgTx) OwnerHasOpenSession(ctx context.Context, ownerID string) (bool, error) {
	var exists bool
	err := t.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM game_sessions WHERE owner_id = $1 AND status IN ('starting', 'active'))`,
		ownerID).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertSession(ctx context.Context, sess *models.GameSession) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO game_sessions (id, game_id, owner_id, join_code, status, kind, is_private, max_players,
			current_players, spectator_count, peak_players, video_quality, fps, chat_seq,
			started_at, ended_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		sess.ID, sess.GameID, sess.OwnerID, nullString(sess.JoinCode), sess.Status, sess.Kind, sess.IsPrivate,
		sess.MaxPlayers, sess.CurrentPlayers, sess.SpectatorCount, sess.PeakPlayers, sess.VideoQuality,
		sess.FPS, sess.ChatSeq, sess.StartedAt, sess.EndedAt, sess.LastActivity)
	return mapUniqueViolation(err)
}

func (t *pgTx) LockSession(ctx context.Context, id string) (*models.GameSession, error) {
	return getSession(ctx, t.q, id, true)
}

func (t *pgTx) UpdateSession(ctx context.Context, sess *models.GameSession) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE game_sessions SET status = $2, current_players = $3, spectator_count = $4, peak_players = $5,
			chat_seq = $6, ended_at = $7, last_activity = $8
		WHERE id = $1`,
		sess.ID, sess.Status, sess.CurrentPlayers, sess.SpectatorCount, sess.PeakPlayers,
		sess.ChatSeq, sess.EndedAt, sess.LastActivity)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return requireAffected(res)
}

func (t *pgTx) GetParticipant(ctx context.Context, sessionID, userID string) (*models.Participant, error) {
	return scanParticipant(t.q.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM session_participants WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID))
}

func (t *pgTx) SaveParticipant(ctx context.Context, p *models.Participant) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO session_participants (session_id, user_id, role, is_host, joined_at, left_at, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, user_id) DO UPDATE SET
			role = EXCLUDED.role, is_host = EXCLUDED.is_host, joined_at = EXCLUDED.joined_at,
			left_at = EXCLUDED.left_at, duration_seconds = EXCLUDED.duration_seconds`,
		p.SessionID, p.UserID, p.Role, p.IsHost, p.JoinedAt, p.LeftAt, p.DurationSeconds)
	return err
}

func (t *pgTx) ListPresentParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	return listParticipants(ctx, t.q, sessionID, true)
}

func (t *pgTx) CountParticipants(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_participants WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}

func (t *pgTx) InsertHistory(ctx context.Context, h *models.SessionHistory) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO session_history (session_id, game_id, owner_id, final_status, started_at, ended_at,
			duration_seconds, participant_count, peak_players)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		h.SessionID, h.GameID, h.OwnerID, h.FinalStatus, h.StartedAt, h.EndedAt,
		h.DurationSeconds, h.ParticipantCount, h.PeakPlayers)
	return err
}

func (t *pgTx) InsertChatMessage(ctx context.Context, m *models.ChatMessage) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, seq, user_id, message_type, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.SessionID, m.Seq, nullString(m.UserID), m.Type, m.Content, m.CreatedAt)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapUniqueViolation 将唯一约束冲突映射为存储层哨兵错误
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case constraintJoinCode:
		return store.ErrJoinCodeTaken
	case constraintOwnerOpen:
		return store.ErrOwnerBusy
	}
	return err
}
