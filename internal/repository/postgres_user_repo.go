package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/ethergreen/internal/model"
)

const userColumns = `id, email, password_hash, name, birth_date, birth_time, birth_location,
	human_design_type, gene_keys, numerology, is_premium, premium_since, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var geneKeys, numerology []byte
	var premiumSince sql.NullTime

	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name,
		&user.BirthDate, &user.BirthTime, &user.BirthLocation,
		&user.HumanDesignType, &geneKeys, &numerology,
		&user.IsPremium, &premiumSince, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(geneKeys, &user.GeneKeys); err != nil {
		return nil, err
	}
	if len(numerology) > 0 && string(numerology) != "null" {
		user.Numerology = &model.NumerologyProfile{}
		if err := unmarshalJSONB(numerology, user.Numerology); err != nil {
			return nil, err
		}
	}
	if premiumSince.Valid {
		t := premiumSince.Time
		user.PremiumSince = &t
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	geneKeys, err := marshalJSONB(nonNilStrings(user.GeneKeys))
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, name, birth_date, birth_time, birth_location,
			human_design_type, gene_keys, is_premium, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		user.ID, user.Email, user.PasswordHash, user.Name,
		user.BirthDate, user.BirthTime, user.BirthLocation,
		user.HumanDesignType, geneKeys, user.IsPremium, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateProfile はnilでないフィールドのみ更新し、更新後のユーザーを返す。
// 生年月日を変更した場合、新しい数秘術プロフィールが指定されていなければキャッシュを破棄する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error) {
	if update.IsEmpty() {
		return r.FindByID(ctx, id)
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.BirthDate != nil {
		add("birth_date", *update.BirthDate)
		if update.Numerology == nil {
			sets = append(sets, "numerology = NULL")
		}
	}
	if update.BirthTime != nil {
		add("birth_time", *update.BirthTime)
	}
	if update.BirthLocation != nil {
		add("birth_location", *update.BirthLocation)
	}
	if update.HumanDesignType != nil {
		add("human_design_type", *update.HumanDesignType)
	}
	if update.GeneKeys != nil {
		b, err := marshalJSONB(nonNilStrings(*update.GeneKeys))
		if err != nil {
			return nil, err
		}
		add("gene_keys", b)
	}
	if update.Numerology != nil {
		b, err := marshalJSONB(update.Numerology)
		if err != nil {
			return nil, err
		}
		add("numerology", b)
	}

	sets = append(sets, "updated_at = now()")
	args = append(args, id)
	query := `UPDATE users SET ` + strings.Join(sets, ", ") +
		` WHERE id = $` + strconv.Itoa(len(args)) + ` RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}
	return user, nil
}

// SaveNumerology は計算済みの数秘術プロフィールをキャッシュする。
func (r *PostgresUserRepo) SaveNumerology(ctx context.Context, id string, profile *model.NumerologyProfile) error {
	b, err := marshalJSONB(profile)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE users SET numerology = $1, updated_at = now() WHERE id = $2`,
		b, id,
	)
	if err != nil {
		return fmt.Errorf("failed to save numerology: %w", err)
	}
	return nil
}

// SetPremium はユーザーをプレミアム会員にする。既にプレミアムの場合はpremium_sinceを維持する。
func (r *PostgresUserRepo) SetPremium(ctx context.Context, id string, since time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET is_premium = TRUE, premium_since = COALESCE(premium_since, $1), updated_at = now()
		 WHERE id = $2`,
		since, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set premium: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのユーザーを削除する。
// readings、chat_history、bio_scans、community_postsはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// nonNilStrings はJSONで"null"ではなく"[]"を書き込むためにnilを空スライスに置き換える。
func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
