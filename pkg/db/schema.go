// schema.go

package db

import (
	"context"
	"database/sql"
)

// 统一的数据库表结构定义

// CreateAllTablesSQL 创建所有表的SQL语句
const CreateAllTablesSQL = `
-- 用户表
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    external_id VARCHAR(200) NOT NULL,
    username VARCHAR(50) NOT NULL,
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    online BOOLEAN NOT NULL DEFAULT false,
    last_seen TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CONSTRAINT uniq_users_external_id UNIQUE (external_id)
);

-- 游戏目录表
CREATE TABLE IF NOT EXISTS games (
    id BIGSERIAL PRIMARY KEY,
    title VARCHAR(100) NOT NULL,
    platform VARCHAR(30) NOT NULL,
    max_players INT NOT NULL DEFAULT 1,
    play_count BIGINT NOT NULL DEFAULT 0
);

-- 游戏会话表
CREATE TABLE IF NOT EXISTS game_sessions (
    id UUID PRIMARY KEY,
    game_id BIGINT NOT NULL REFERENCES games(id),
    owner_id UUID NOT NULL REFERENCES users(id),
    join_code CHAR(6),
    status VARCHAR(20) NOT NULL DEFAULT 'starting',
    kind VARCHAR(20) NOT NULL,
    is_private BOOLEAN NOT NULL DEFAULT false,
    max_players INT NOT NULL,
    current_players INT NOT NULL DEFAULT 0,
    spectator_count INT NOT NULL DEFAULT 0,
    peak_players INT NOT NULL DEFAULT 0,
    video_quality VARCHAR(20) NOT NULL,
    fps INT NOT NULL,
    chat_seq BIGINT NOT NULL DEFAULT 0,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    ended_at TIMESTAMP WITH TIME ZONE,
    last_activity TIMESTAMP WITH TIME ZONE NOT NULL,
    CONSTRAINT uniq_session_join_code UNIQUE (join_code),
    CONSTRAINT chk_session_players CHECK (current_players >= 0 AND current_players <= max_players),
    CONSTRAINT chk_session_spectators CHECK (spectator_count >= 0)
);

-- 每个房主最多一个进行中的会话
CREATE UNIQUE INDEX IF NOT EXISTS uniq_open_session_per_owner
    ON game_sessions(owner_id) WHERE status IN ('starting', 'active');

-- 会话参与者表，离开时只写 left_at 不删除
CREATE TABLE IF NOT EXISTS session_participants (
    session_id UUID REFERENCES game_sessions(id) ON DELETE CASCADE,
    user_id UUID REFERENCES users(id),
    role VARCHAR(20) NOT NULL,
    is_host BOOLEAN NOT NULL DEFAULT false,
    joined_at TIMESTAMP WITH TIME ZONE NOT NULL,
    left_at TIMESTAMP WITH TIME ZONE,
    duration_seconds BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (session_id, user_id)
);

-- 聊天消息表，只追加
CREATE TABLE IF NOT EXISTS chat_messages (
    session_id UUID REFERENCES game_sessions(id) ON DELETE CASCADE,
    seq BIGINT NOT NULL,
    user_id UUID REFERENCES users(id),
    message_type VARCHAR(20) NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    PRIMARY KEY (session_id, seq)
);

-- 会话汇总表，写入后不再修改
CREATE TABLE IF NOT EXISTS session_history (
    session_id UUID PRIMARY KEY REFERENCES game_sessions(id) ON DELETE CASCADE,
    game_id BIGINT NOT NULL,
    owner_id UUID NOT NULL,
    final_status VARCHAR(20) NOT NULL,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    ended_at TIMESTAMP WITH TIME ZONE NOT NULL,
    duration_seconds BIGINT NOT NULL,
    participant_count INT NOT NULL,
    peak_players INT NOT NULL
);

-- 创建索引以提高查询性能
CREATE INDEX IF NOT EXISTS idx_game_sessions_status_started ON game_sessions(status, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_game_sessions_game_id ON game_sessions(game_id);
CREATE INDEX IF NOT EXISTS idx_session_participants_user_id ON session_participants(user_id);
`

// DropAllTablesSQL 删除所有表（按依赖关系顺序）
const DropAllTablesSQL = `
DROP TABLE IF EXISTS session_history CASCADE;
DROP TABLE IF EXISTS chat_messages CASCADE;
DROP TABLE IF EXISTS session_participants CASCADE;
DROP TABLE IF EXISTS game_sessions CASCADE;
DROP TABLE IF EXISTS games CASCADE;
DROP TABLE IF EXISTS users CASCADE;
`

// InitAllTables 初始化所有数据库表
func InitAllTables(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, CreateAllTablesSQL)
	return err
}

// DropAllTables 删除所有数据库表
func DropAllTables(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, DropAllTablesSQL)
	return err
}
