package model

// Category は商品カテゴリを表す。
// Nameは商品のCategoryフィールドとの結合キーとして使われる。
type Category struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Icon            string `json:"icon"`
	Color           string `json:"color"`
	Active          bool   `json:"active"`
	DiscountPercent int    `json:"discount_percent"`
}

// Product はカタログの商品を表す。価格は通貨単位の整数。
type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Image       string `json:"image"`
	Category    string `json:"category"`
	Stock       int    `json:"stock"`
	IsNew       bool   `json:"is_new"`
}

// ProductSort は商品一覧の並び順を表す。
type ProductSort string

const (
	ProductSortDefault   ProductSort = "default"
	ProductSortPriceLow  ProductSort = "price-low"
	ProductSortPriceHigh ProductSort = "price-high"
	ProductSortName      ProductSort = "name"
	ProductSortNew       ProductSort = "new"
)

// ProductQuery は商品一覧の検索条件。
type ProductQuery struct {
	Search   string // 商品名・説明の部分一致（大文字小文字を区別しない）
	Category string // カテゴリ名の完全一致。空なら全件
	Sort     ProductSort
}

// CategoryFilter はカテゴリ一覧の絞り込み条件。
type CategoryFilter struct {
	ActiveOnly     bool
	DiscountedOnly bool
}
