package model

import "time"

// CartItem はカート内の1商品（ラインアイテム）を表す。
// Priceは追加時点で確定した実効価格で、数量を増やしても再計算しない。
type CartItem struct {
	ProductID       int64     `json:"product_id"`
	Name            string    `json:"name"`
	Price           int64     `json:"price"`
	OriginalPrice   int64     `json:"original_price"`
	Image           string    `json:"image"`
	Quantity        int       `json:"quantity"`
	DiscountPercent int       `json:"discount_percent"`
	AddedAt         time.Time `json:"added_at"`
}

// Subtotal はラインアイテムの小計を返す。
func (c CartItem) Subtotal() int64 {
	return c.Price * int64(c.Quantity)
}

// Cart はユーザーのカートと派生合計を表す。
// 合計は常にItemsから再計算し、保存しない。
type Cart struct {
	Items         []CartItem `json:"items"`
	TotalQuantity int        `json:"total_quantity"`
	TotalPrice    int64      `json:"total_price"`
}
