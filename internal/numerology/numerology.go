// Package numerology は生年月日から数秘術の数値を計算する。
package numerology

import (
	"errors"

	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/random"
)

// ErrNoDigits は日付文字列に数字が含まれない場合のエラー。
var ErrNoDigits = errors.New("birth date contains no digits")

// マスターナンバーは1桁に還元しない
var masterNumbers = map[int]bool{11: true, 22: true, 33: true}

// LifePath は生年月日のライフパスナンバーを返す。
// 区切り文字を除いた全桁を合計し、9以下かマスターナンバーになるまで桁和を繰り返す。
func LifePath(birthDate string) (int, error) {
	total := 0
	found := false
	for _, r := range birthDate {
		if r >= '0' && r <= '9' {
			total += int(r - '0')
			found = true
		}
	}
	if !found {
		return 0, ErrNoDigits
	}

	for total > 9 && !masterNumbers[total] {
		total = digitSum(total)
	}
	return total, nil
}

func digitSum(n int) int {
	sum := 0
	for n > 0 {
		sum += n % 10
		n /= 10
	}
	return sum
}

// ExpressionNumber は1〜9のエクスプレッションナンバーを返す。
// 名前から導く計算式は未定義のため乱数のプレースホルダーとしている。
// 同じユーザーで値が変わらないよう、呼び出し側で一度だけ計算してキャッシュすること。
func ExpressionNumber(rng random.Source) int {
	return random.Between(rng, 1, 9)
}

// Profile は生年月日から数秘術プロフィールを生成する。
func Profile(birthDate string, rng random.Source) (*model.NumerologyProfile, error) {
	lifePath, err := LifePath(birthDate)
	if err != nil {
		return nil, err
	}
	return &model.NumerologyProfile{
		LifePath:         lifePath,
		ExpressionNumber: ExpressionNumber(rng),
	}, nil
}
