// Package pricing はログイン状態とカテゴリ割引に基づく実効価格を計算する。
package pricing

import (
	"math"

	"github.com/hitoshi/techshop/internal/model"
)

// Quote は1商品の価格見積もり。
type Quote struct {
	Listed          int64 `json:"listed_price"`
	Effective       int64 `json:"effective_price"`
	DiscountPercent int   `json:"discount_percent"`
	Savings         int64 `json:"savings"`
}

// Discounted は割引が適用されているかを返す。
func (q Quote) Discounted() bool {
	return q.DiscountPercent > 0
}

// EffectivePrice は商品の実効価格を計算する。
//
// 未ログインの場合は定価を返し、割引率は0とする。
// ログイン済みの場合、商品のカテゴリ名と完全一致するカテゴリを探し、
// 割引率が正であれば定価*(1-割引率/100)を四捨五入した値を返す。
// カテゴリのactiveフラグは価格計算では参照しない。
func EffectivePrice(product *model.Product, categories []*model.Category, hasSession bool) Quote {
	q := Quote{Listed: product.Price, Effective: product.Price}
	if !hasSession {
		return q
	}

	category := FindCategory(categories, product.Category)
	if category == nil || category.DiscountPercent <= 0 {
		return q
	}

	q.DiscountPercent = category.DiscountPercent
	q.Effective = applyDiscount(product.Price, category.DiscountPercent)
	q.Savings = q.Listed - q.Effective
	return q
}

// FindCategory は名前が完全一致する最初のカテゴリを返す。見つからない場合はnil。
func FindCategory(categories []*model.Category, name string) *model.Category {
	for _, c := range categories {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func applyDiscount(listed int64, percent int) int64 {
	return int64(math.Round(float64(listed) * (1 - float64(percent)/100)))
}
