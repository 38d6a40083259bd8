package catalog

import (
	"sort"
	"strings"

	"github.com/hitoshi/techshop/internal/model"
)

// AllCategories はカテゴリ絞り込みなしを表すクエリ値。
const AllCategories = "all"

// ParseSort は並び順の文字列を解釈する。未知の値はdefaultとして扱う。
func ParseSort(s string) model.ProductSort {
	switch v := model.ProductSort(s); v {
	case model.ProductSortPriceLow, model.ProductSortPriceHigh, model.ProductSortName, model.ProductSortNew:
		return v
	default:
		return model.ProductSortDefault
	}
}

// Filter は検索語・カテゴリで絞り込み、指定順に並べた新しいスライスを返す。
// 入力スライスは変更しない。並び替えは安定ソートで、同値の要素は元の順序を保つ。
func Filter(products []*model.Product, q model.ProductQuery) []*model.Product {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	category := q.Category
	if category == AllCategories {
		category = ""
	}

	result := make([]*model.Product, 0, len(products))
	for _, p := range products {
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		result = append(result, p)
	}

	switch q.Sort {
	case model.ProductSortPriceLow:
		sort.SliceStable(result, func(i, j int) bool { return result[i].Price < result[j].Price })
	case model.ProductSortPriceHigh:
		sort.SliceStable(result, func(i, j int) bool { return result[i].Price > result[j].Price })
	case model.ProductSortName:
		sort.SliceStable(result, func(i, j int) bool {
			return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
		})
	case model.ProductSortNew:
		sort.SliceStable(result, func(i, j int) bool { return result[i].IsNew && !result[j].IsNew })
	}
	return result
}

// FilterCategories はカテゴリの絞り込み条件を適用する。
func FilterCategories(categories []*model.Category, f model.CategoryFilter) []*model.Category {
	result := make([]*model.Category, 0, len(categories))
	for _, c := range categories {
		if f.ActiveOnly && !c.Active {
			continue
		}
		if f.DiscountedOnly && c.DiscountPercent <= 0 {
			continue
		}
		result = append(result, c)
	}
	return result
}
