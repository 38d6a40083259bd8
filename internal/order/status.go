package order

import "github.com/hitoshi/techshop/internal/model"

// transitions は各ステータスから遷移可能なステータスの表。
// delivered と cancelled は終端で、遷移先を持たない。
var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusUnderReview: {model.OrderStatusConfirmed, model.OrderStatusCancelled},
	model.OrderStatusConfirmed:   {model.OrderStatusShipping, model.OrderStatusCancelled},
	model.OrderStatusShipping:    {model.OrderStatusDelivered, model.OrderStatusCancelled},
	model.OrderStatusDelivered:   nil,
	model.OrderStatusCancelled:   nil,
}

// ParseStatus は文字列を注文ステータスとして解釈する。未定義の値はInvalidStatusエラー。
func ParseStatus(s string) (model.OrderStatus, error) {
	status := model.OrderStatus(s)
	if _, ok := transitions[status]; !ok {
		return "", model.NewInvalidStatusError(s)
	}
	return status, nil
}

// CanTransition はfromからtoへの遷移が許可されているかを返す。
// 同じステータスへの変更は許可する（何も変わらない）。
func CanTransition(from, to model.OrderStatus) bool {
	if from == to {
		_, ok := transitions[from]
		return ok
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal は遷移先を持たないステータスかを返す。
func IsTerminal(status model.OrderStatus) bool {
	next, ok := transitions[status]
	return ok && len(next) == 0
}
