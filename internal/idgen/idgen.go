// Package idgen はミリ秒時刻を基にした単調増加IDを生成する。
// 同一ミリ秒内に複数回呼ばれた場合は直前の値+1を返すため、
// 1プロセス内で値が重複することはない。
package idgen

import (
	"strconv"
	"sync"
	"time"
)

// OrderNumberPrefix は注文番号の接頭辞。
const OrderNumberPrefix = "ORD-"

// Generator はミリ秒単位の単調増加IDジェネレータ。ゼロ値は使用できない。
type Generator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// New は現在時刻を使うGeneratorを生成する。
func New() *Generator {
	return &Generator{now: time.Now}
}

// NewWithClock は時刻関数を差し替えたGeneratorを生成する。テスト用。
func NewWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Next は直前の値より必ず大きいIDを返す。
// 時刻が巻き戻った場合も直前の値+1を返す。
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.now().UnixMilli()
	if n <= g.last {
		n = g.last + 1
	}
	g.last = n
	return n
}

// OrderNumber は "ORD-<n>" 形式の注文番号を返す。
func (g *Generator) OrderNumber() string {
	return OrderNumberPrefix + strconv.FormatInt(g.Next(), 10)
}
