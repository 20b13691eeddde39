package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/ethergreen/internal/model"
)

// PostgresChatRepo はPostgreSQLを使用したオラクル会話履歴リポジトリ。
type PostgresChatRepo struct {
	db *sql.DB
}

// NewPostgresChatRepo はPostgresChatRepoを生成する。
func NewPostgresChatRepo(db *sql.DB) *PostgresChatRepo {
	return &PostgresChatRepo{db: db}
}

// Create は会話を1往復分保存する。
func (r *PostgresChatRepo) Create(ctx context.Context, msg *model.ChatMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_history (id, user_id, user_message, oracle_response, context, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.UserID, msg.UserMessage, msg.OracleResponse, msg.Context, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの会話履歴をcreated_at降順で最大limit件返す。
func (r *PostgresChatRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, user_message, oracle_response, context, created_at
		 FROM chat_history
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat history: %w", err)
	}
	defer rows.Close()

	messages := make([]*model.ChatMessage, 0)
	for rows.Next() {
		m := &model.ChatMessage{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.UserMessage, &m.OracleResponse, &m.Context, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat history: %w", err)
	}
	return messages, nil
}

// compile-time interface check
var _ ChatRepository = (*PostgresChatRepo)(nil)
