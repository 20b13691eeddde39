package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/ethergreen/internal/model"
)

// PostgresReadingRepo はPostgreSQLを使用したタロットリーディングリポジトリ。
// カード列はJSONBとして保存する。
type PostgresReadingRepo struct {
	db *sql.DB
}

// NewPostgresReadingRepo はPostgresReadingRepoを生成する。
func NewPostgresReadingRepo(db *sql.DB) *PostgresReadingRepo {
	return &PostgresReadingRepo{db: db}
}

// Create はリーディングを保存する。
func (r *PostgresReadingRepo) Create(ctx context.Context, reading *model.Reading) error {
	cards, err := marshalJSONB(reading.Cards)
	if err != nil {
		return err
	}

	var question sql.NullString
	if reading.Question != nil {
		question = sql.NullString{String: *reading.Question, Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tarot_readings (id, user_id, spread_type, question, cards, interpretation, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		reading.ID, reading.UserID, reading.SpreadType, question, cards, reading.Interpretation, reading.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// ListByUserID はユーザーのリーディングをcreated_at降順で最大limit件返す。
func (r *PostgresReadingRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Reading, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, spread_type, question, cards, interpretation, created_at
		 FROM tarot_readings
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	defer rows.Close()

	readings := make([]*model.Reading, 0)
	for rows.Next() {
		reading := &model.Reading{}
		var question sql.NullString
		var cards []byte
		if err := rows.Scan(
			&reading.ID, &reading.UserID, &reading.SpreadType, &question,
			&cards, &reading.Interpretation, &reading.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		if question.Valid {
			q := question.String
			reading.Question = &q
		}
		if err := unmarshalJSONB(cards, &reading.Cards); err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}

	return readings, nil
}

// compile-time interface check
var _ ReadingRepository = (*PostgresReadingRepo)(nil)
