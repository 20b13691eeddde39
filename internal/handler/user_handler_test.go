package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/user"
)

// --- PUT /api/profile テスト ---

func TestUserHandler_UpdateProfile_OnlyNonNullFields(t *testing.T) {
	var got model.ProfileUpdate
	svc := &mockUserService{
		updateProfileFn: func(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
			got = update
			u := testUser()
			u.HumanDesignType = *update.HumanDesignType
			return u, nil
		},
	}
	h := NewUserHandler(svc)

	body := `{"human_design_type":"Projector","gene_keys":["12","6"],"name":null}`
	req := withUserID(httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(body)), "user-123")
	w := httptest.NewRecorder()
	h.UpdateProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	if got.Name != nil || got.BirthDate != nil {
		t.Errorf("null/omitted fields must stay nil: %+v", got)
	}
	if got.GeneKeys == nil || len(*got.GeneKeys) != 2 {
		t.Errorf("gene keys = %v", got.GeneKeys)
	}

	resp := decodeBody[profileUpdateResponse](t, w)
	if resp.Message != "Profile updated" || resp.User.HumanDesignType != "Projector" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestUserHandler_UpdateProfile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"生年月日の形式が不正", `{"birth_date":"1990/01/01"}`},
		{"遺伝子キーが多すぎる", `{"gene_keys":["1","2","3","4"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewUserHandler(&mockUserService{})
			req := withUserID(httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(tt.body)), "user-123")
			w := httptest.NewRecorder()
			h.UpdateProfile(w, req)

			assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidationFailed)
		})
	}
}

// --- GET /api/profile/soulprint テスト ---

func TestUserHandler_Soulprint(t *testing.T) {
	svc := &mockUserService{
		soulprintFn: func(ctx context.Context, userID string) (*user.Soulprint, error) {
			return &user.Soulprint{
				User:        testUser(),
				Numerology:  &model.NumerologyProfile{LifePath: 3, ExpressionNumber: 5},
				HumanDesign: user.HumanDesign{Type: "Generator", Profile: "3/5"},
				GeneKeys:    user.BuildGeneKeys(nil),
				BioMarkers:  user.BioMarkers{StrongestFrequency: "432Hz"},
			}, nil
		},
	}
	h := NewUserHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/profile/soulprint", nil), "user-123")
	w := httptest.NewRecorder()
	h.Soulprint(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeBody[map[string]any](t, w)
	numerology := resp["numerology"].(map[string]any)
	if numerology["life_path"] != float64(3) {
		t.Errorf("life_path = %v, want 3", numerology["life_path"])
	}
	geneKeys := resp["gene_keys"].(map[string]any)
	if len(geneKeys) != 3 {
		t.Errorf("gene_keys = %v, want 3 spheres", geneKeys)
	}
	if resp["human_design"].(map[string]any)["profile"] != "3/5" {
		t.Errorf("human_design = %v", resp["human_design"])
	}
}

// --- DELETE /api/users/me テスト ---

func TestUserHandler_Withdraw_Success(t *testing.T) {
	withdrawCalled := false
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			withdrawCalled = true
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			return nil
		},
	}

	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if !withdrawCalled {
		t.Error("expected Withdraw to be called")
	}
}

func TestUserHandler_Withdraw_Errors(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		err        error
		wantStatus int
	}{
		{"ユーザーIDなしは401", "", nil, http.StatusUnauthorized},
		{"ユーザーが存在しない", "user-123", model.NewUserNotFoundError(), http.StatusNotFound},
		{"内部エラー", "user-123", errors.New("transaction failed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockUserService{
				withdrawFn: func(ctx context.Context, userID string) error {
					return tt.err
				},
			}
			h := NewUserHandler(svc)

			req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
			if tt.userID != "" {
				req = withUserID(req, tt.userID)
			}
			w := httptest.NewRecorder()
			h.Withdraw(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
