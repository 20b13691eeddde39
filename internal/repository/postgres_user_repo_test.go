package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/hitoshi/ethergreen/internal/model"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func userRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "name", "birth_date", "birth_time", "birth_location",
		"human_design_type", "gene_keys", "numerology", "is_premium", "premium_since", "created_at", "updated_at",
	}).AddRow(
		"user-1", "seeker@example.com", "hash", "Seeker", "1990-01-01", "", "Kyoto",
		"Generator", []byte(`["Gate 1","Gate 2"]`), []byte(`{"life_path":3,"expression_number":5}`),
		true, now, now, now,
	)
}

func TestPostgresUserRepo_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("user-1").
		WillReturnRows(userRow(now))

	user, err := repo.FindByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if user == nil {
		t.Fatal("FindByID() = nil, want user")
	}
	if user.Email != "seeker@example.com" || user.HumanDesignType != "Generator" {
		t.Errorf("unexpected user: %+v", user)
	}
	if len(user.GeneKeys) != 2 || user.GeneKeys[1] != "Gate 2" {
		t.Errorf("GeneKeys = %v", user.GeneKeys)
	}
	if user.Numerology == nil || user.Numerology.LifePath != 3 || user.Numerology.ExpressionNumber != 5 {
		t.Errorf("Numerology = %+v", user.Numerology)
	}
	if user.PremiumSince == nil || !user.PremiumSince.Equal(now) {
		t.Errorf("PremiumSince = %v, want %v", user.PremiumSince, now)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// 見つからない場合はnil, nilを返す
func TestPostgresUserRepo_FindByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	user, err := repo.FindByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if user != nil {
		t.Errorf("FindByID() = %+v, want nil", user)
	}
}

// numerologyとpremium_sinceがNULLのユーザーを読み込める
func TestPostgresUserRepo_FindByEmail_NullColumns(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "email", "password_hash", "name", "birth_date", "birth_time", "birth_location",
		"human_design_type", "gene_keys", "numerology", "is_premium", "premium_since", "created_at", "updated_at",
	}).AddRow("user-2", "new@example.com", "hash", "", "", "", "", "", []byte(`[]`), nil, false, nil, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("new@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if user.Numerology != nil {
		t.Errorf("Numerology = %+v, want nil", user.Numerology)
	}
	if user.PremiumSince != nil {
		t.Errorf("PremiumSince = %v, want nil", user.PremiumSince)
	}
	if user.GeneKeys == nil || len(user.GeneKeys) != 0 {
		t.Errorf("GeneKeys = %v, want empty slice", user.GeneKeys)
	}
}

func TestPostgresUserRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now()
	user := &model.User{ID: "user-1", Email: "seeker@example.com", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("user-1", "seeker@example.com", "hash", "", "", "", "", "", []byte(`[]`), false, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// 一意制約違反はErrDuplicateに変換される
func TestPostgresUserRepo_Create_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &model.User{ID: "user-1", Email: "taken@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create() error = %v, want ErrDuplicate", err)
	}
}

// 生年月日の変更時は数秘術キャッシュをクリアする
func TestPostgresUserRepo_UpdateProfile_BirthDateClearsNumerology(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	birthDate := "1978-02-02"
	name := "Luna"

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET name = $1, birth_date = $2, numerology = NULL, updated_at = now() WHERE id = $3 RETURNING")).
		WithArgs(name, birthDate, "user-1").
		WillReturnRows(userRow(time.Now()))

	user, err := repo.UpdateProfile(context.Background(), "user-1", model.ProfileUpdate{Name: &name, BirthDate: &birthDate})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if user == nil {
		t.Fatal("UpdateProfile() = nil, want user")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// 更新項目がない場合はUPDATEを発行せず現在の値を返す
func TestPostgresUserRepo_UpdateProfile_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("user-1").
		WillReturnRows(userRow(time.Now()))

	if _, err := repo.UpdateProfile(context.Background(), "user-1", model.ProfileUpdate{}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUserRepo_SaveNumerology(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET numerology = $1")).
		WithArgs([]byte(`{"life_path":11,"expression_number":4}`), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveNumerology(context.Background(), "user-1", &model.NumerologyProfile{LifePath: 11, ExpressionNumber: 4})
	if err != nil {
		t.Fatalf("SaveNumerology() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// premium_sinceは初回のみ設定される
func TestPostgresUserRepo_SetPremium(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	since := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("premium_since = COALESCE(premium_since, $1)")).
		WithArgs(since, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetPremium(context.Background(), "user-1", since); err != nil {
		t.Fatalf("SetPremium() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUserRepo_DeleteByID(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		wantErr      bool
	}{
		{name: "削除成功", rowsAffected: 1},
		{name: "存在しないユーザー", rowsAffected: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewPostgresUserRepo(db)

			mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
				WithArgs("user-1").
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			err := repo.DeleteByID(context.Background(), "user-1")
			if (err != nil) != tt.wantErr {
				t.Errorf("DeleteByID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
