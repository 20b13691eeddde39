// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/numerology"
	"github.com/hitoshi/ethergreen/internal/random"
	"github.com/hitoshi/ethergreen/internal/repository"
)

// TextSanitizer はプロフィールのテキスト項目からタグを除去するインターフェース。
// security.ContentSanitizerServiceの部分集合。
type TextSanitizer interface {
	StripTags(raw string) string
}

// HumanDesign はソウルプリントに含めるヒューマンデザインの概要。
type HumanDesign struct {
	Type           string   `json:"type"`
	Profile        string   `json:"profile"`
	Authority      string   `json:"authority"`
	DefinedCenters []string `json:"defined_centers"`
	OpenCenters    []string `json:"open_centers"`
}

// GeneKey は遺伝子キー1つ分の情報。
type GeneKey struct {
	Key    int    `json:"key"`
	Shadow string `json:"shadow,omitempty"`
	Gift   string `json:"gift,omitempty"`
	Siddhi string `json:"siddhi,omitempty"`
}

// BioMarkers はソウルプリントに含めるバイオマーカー。
type BioMarkers struct {
	StrongestFrequency string `json:"strongest_frequency"`
	WeakestArea        string `json:"weakest_area"`
	RecommendedElement string `json:"recommended_element"`
}

// Soulprint は出生情報・数秘術・ヒューマンデザインを統合したプロフィール。
type Soulprint struct {
	User        *model.User
	Numerology  *model.NumerologyProfile
	HumanDesign HumanDesign
	GeneKeys    map[string]GeneKey
	BioMarkers  BioMarkers
	IsPremium   bool
}

// 遺伝子キーのスフィア名。ユーザーが登録したキーはこの順に割り当てる。
var geneKeySpheres = []string{"life_work", "evolution", "radiance"}

// 既知の遺伝子キー。未登録ユーザーには64, 47, 6を返す。
var knownGeneKeys = map[int]GeneKey{
	64: {Key: 64, Shadow: "Confusion", Gift: "Imagination", Siddhi: "Illumination"},
	47: {Key: 47, Shadow: "Oppression", Gift: "Transmutation", Siddhi: "Transfiguration"},
	6:  {Key: 6, Shadow: "Conflict", Gift: "Diplomacy", Siddhi: "Peace"},
}

var defaultGeneKeys = []int{64, 47, 6}

// Service はユーザー管理のサービス層。
// プロフィール更新、ソウルプリント、退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer TextSanitizer
	rng       random.Source
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sanitizer TextSanitizer,
	rng random.Source,
	logger *slog.Logger,
) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
		rng:       rng,
		logger:    logger,
	}
}

// UpdateProfile はnilでないフィールドのみ更新し、更新後のユーザーを返す。
// 生年月日を変更するとキャッシュ済みの数秘術はリポジトリ側で破棄される。
func (s *Service) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	if update.Name != nil {
		name := s.sanitizer.StripTags(*update.Name)
		update.Name = &name
	}
	if update.BirthLocation != nil {
		loc := s.sanitizer.StripTags(*update.BirthLocation)
		update.BirthLocation = &loc
	}
	if update.HumanDesignType != nil {
		hd := s.sanitizer.StripTags(*update.HumanDesignType)
		update.HumanDesignType = &hd
	}

	user, err := s.userRepo.UpdateProfile(ctx, userID, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	s.logger.Info("profile updated", slog.String("user_id", userID))
	return user, nil
}

// Soulprint はユーザーのソウルプリントを返す。
// 生年月日があり数秘術が未計算の場合は計算してユーザーレコードにキャッシュする。
func (s *Service) Soulprint(ctx context.Context, userID string) (*Soulprint, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if user.Numerology == nil && user.BirthDate != "" {
		profile, err := numerology.Profile(user.BirthDate, s.rng)
		switch {
		case errors.Is(err, numerology.ErrNoDigits):
			s.logger.Warn("birth date has no digits, skipping numerology",
				slog.String("user_id", userID),
			)
		case err != nil:
			return nil, err
		default:
			if err := s.userRepo.SaveNumerology(ctx, userID, profile); err != nil {
				return nil, fmt.Errorf("failed to cache numerology: %w", err)
			}
			user.Numerology = profile
		}
	}

	hdType := user.HumanDesignType
	if hdType == "" {
		hdType = "Generator"
	}

	return &Soulprint{
		User:       user,
		Numerology: user.Numerology,
		HumanDesign: HumanDesign{
			Type:           hdType,
			Profile:        "3/5",
			Authority:      "Sacral",
			DefinedCenters: []string{"Sacral", "Root", "Heart"},
			OpenCenters:    []string{"Head", "Ajna", "Throat", "Spleen", "Solar Plexus", "G-Center"},
		},
		GeneKeys: BuildGeneKeys(user.GeneKeys),
		BioMarkers: BioMarkers{
			StrongestFrequency: "432Hz",
			WeakestArea:        "Nervous System",
			RecommendedElement: "Water",
		},
		IsPremium: user.IsPremium,
	}, nil
}

// BuildGeneKeys は登録済みのキー番号をスフィアに割り当てる。
// 数値として解釈できるキーが1つもない場合は既定の3つを返す。
func BuildGeneKeys(keys []string) map[string]GeneKey {
	numbers := make([]int, 0, len(geneKeySpheres))
	for _, k := range keys {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || n < 1 || n > 64 {
			continue
		}
		numbers = append(numbers, n)
		if len(numbers) == len(geneKeySpheres) {
			break
		}
	}
	if len(numbers) == 0 {
		numbers = defaultGeneKeys
	}

	result := make(map[string]GeneKey, len(numbers))
	for i, n := range numbers {
		gk, ok := knownGeneKeys[n]
		if !ok {
			gk = GeneKey{Key: n}
		}
		result[geneKeySpheres[i]] = gk
	}
	return result
}

// Withdraw はユーザーの退会処理を実行する。
// リーディング、会話履歴、スキャン、投稿はCASCADE削除され、決済記録はuser_idがNULLになる。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	s.logger.Info("withdrawing user", slog.String("user_id", userID))

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.logger.Info("user withdrawn", slog.String("user_id", userID))
	return nil
}
