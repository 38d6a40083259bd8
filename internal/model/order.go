package model

import "time"

// GuestUserID は所有者が削除された注文に付け替える所有者マーカー。
const GuestUserID = "guest"

// OrderStatus は注文の処理状態を表す。
type OrderStatus string

const (
	// OrderStatusUnderReview は受付直後の確認待ち状態。作成時の初期状態。
	OrderStatusUnderReview OrderStatus = "under_review"
	// OrderStatusConfirmed は確認済み状態。
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipping は配送中状態。
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusDelivered は配達完了状態（終端）。
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled はキャンセル状態（終端）。
	OrderStatusCancelled OrderStatus = "cancelled"
)

// CustomerInfo はチェックアウトフォームの配送・支払い情報のスナップショット。
type CustomerInfo struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code"`
	Note          string `json:"note"`
	PaymentMethod string `json:"payment_method"`
}

// Order は確定した注文を表す。Status以外は作成後に変更しない。
type Order struct {
	ID        string
	Number    string
	UserID    string
	Items     []CartItem
	Total     int64
	Customer  CustomerInfo
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderStats は管理画面の集計値を表す。
type OrderStats struct {
	PendingOrders int   // under_review の注文数
	Revenue       int64 // delivered の注文合計額
	TotalOrders   int
}
