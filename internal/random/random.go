// Package random は抽選処理に注入する乱数ソースを提供する。
package random

import (
	"math/rand/v2"
	"sync"
)

// Source は乱数ソースのインターフェース。
// テストではシード固定のソースや固定列を返すモックに差し替える。
type Source interface {
	// IntN は [0, n) の一様乱数を返す。n <= 0 の場合はpanicする。
	IntN(n int) int
	// Float64 は [0.0, 1.0) の一様乱数を返す。
	Float64() float64
}

// globalSource はmath/rand/v2のトップレベル関数を使うSource。
// トップレベル関数はgoroutineセーフなのでロック不要。
type globalSource struct{}

// NewSource は本番用のSourceを返す。
func NewSource() Source {
	return globalSource{}
}

func (globalSource) IntN(n int) int   { return rand.IntN(n) }
func (globalSource) Float64() float64 { return rand.Float64() }

// seededSource はシード固定のSource。*rand.Randはgoroutineセーフではないためmutexで保護する。
type seededSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeeded はシード固定のSourceを返す。同じシードからは同じ乱数列が得られる。
func NewSeeded(seed uint64) Source {
	return &seededSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

func (s *seededSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Pick はitemsから1つを一様に選ぶ。itemsが空の場合はゼロ値を返す。
func Pick[T any](src Source, items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[src.IntN(len(items))]
}

// Between は [min, max] の一様な整数を返す。
func Between(src Source, min, max int) int {
	if max <= min {
		return min
	}
	return min + src.IntN(max-min+1)
}
