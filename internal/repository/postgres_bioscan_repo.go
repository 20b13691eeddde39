package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/ethergreen/internal/model"
)

// PostgresBioScanRepo はPostgreSQLを使用したバイオスキャンリポジトリ。
type PostgresBioScanRepo struct {
	db *sql.DB
}

// NewPostgresBioScanRepo はPostgresBioScanRepoを生成する。
func NewPostgresBioScanRepo(db *sql.DB) *PostgresBioScanRepo {
	return &PostgresBioScanRepo{db: db}
}

// Create はスキャン結果を保存する。推奨事項はJSONBとして保存する。
func (r *PostgresBioScanRepo) Create(ctx context.Context, scan *model.BioScan) error {
	recs, err := marshalJSONB(scan.Recommendations)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO bio_scans (id, user_id, transcription, analysis, dominant_hz, weakest_hz,
			recommendations, vitality_score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		scan.ID, scan.UserID, scan.Transcription, scan.Analysis,
		scan.DominantFrequency, scan.WeakestFrequency, recs, scan.VitalityScore, scan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bio scan: %w", err)
	}
	return nil
}

// ListByUserID はユーザーのスキャン結果をcreated_at降順で最大limit件返す。
func (r *PostgresBioScanRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.BioScan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, transcription, analysis, dominant_hz, weakest_hz,
			recommendations, vitality_score, created_at
		 FROM bio_scans
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bio scans: %w", err)
	}
	defer rows.Close()

	scans := make([]*model.BioScan, 0)
	for rows.Next() {
		s := &model.BioScan{}
		var recs []byte
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Transcription, &s.Analysis,
			&s.DominantFrequency, &s.WeakestFrequency, &recs, &s.VitalityScore, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bio scan: %w", err)
		}
		if err := unmarshalJSONB(recs, &s.Recommendations); err != nil {
			return nil, err
		}
		scans = append(scans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bio scans: %w", err)
	}
	return scans, nil
}

// compile-time interface check
var _ BioScanRepository = (*PostgresBioScanRepo)(nil)
