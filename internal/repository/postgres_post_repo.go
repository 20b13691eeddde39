package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/ethergreen/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用したコミュニティ投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// Create は投稿を保存する。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.CommunityPost) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO community_posts (id, user_id, user_name, content, category, likes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		post.ID, post.UserID, post.UserName, post.Content, string(post.Category), post.Likes, post.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert community post: %w", err)
	}
	return nil
}

// List は投稿をcreated_at降順で最大limit件返す。
// categoryがmodel.PostCategoryAllの場合は全カテゴリを対象にする。
func (r *PostgresPostRepo) List(ctx context.Context, category string, limit int) ([]*model.CommunityPost, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if category == model.PostCategoryAll || category == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id, user_id, user_name, content, category, likes, created_at
			 FROM community_posts
			 ORDER BY created_at DESC
			 LIMIT $1`,
			limit,
		)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id, user_id, user_name, content, category, likes, created_at
			 FROM community_posts
			 WHERE category = $1
			 ORDER BY created_at DESC
			 LIMIT $2`,
			category, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list community posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*model.CommunityPost, 0)
	for rows.Next() {
		p := &model.CommunityPost{}
		var cat string
		if err := rows.Scan(&p.ID, &p.UserID, &p.UserName, &p.Content, &cat, &p.Likes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan community post: %w", err)
		}
		p.Category = model.PostCategory(cat)
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate community posts: %w", err)
	}
	return posts, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
