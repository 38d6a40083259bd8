// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, cart, order, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeLoginRequired        = "LOGIN_REQUIRED"
	ErrCodeCatalogUnavailable   = "CATALOG_UNAVAILABLE"
	ErrCodeEmptyCart            = "EMPTY_CART"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeInvalidStatus        = "INVALID_STATUS"
	ErrCodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeProductNotFound      = "PRODUCT_NOT_FOUND"
	ErrCodeCategoryNotFound     = "CATEGORY_NOT_FOUND"
	ErrCodeOrderNotFound        = "ORDER_NOT_FOUND"
	ErrCodeCartItemNotFound     = "CART_ITEM_NOT_FOUND"
	ErrCodeValidation           = "VALIDATION_FAILED"
)

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メールアドレスとパスワードのどちらが誤っているかは明かさない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewLoginRequiredError はログインが必要な操作を未ログインで実行した場合のエラーを生成する。
func NewLoginRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginRequired,
		Message:  "この操作にはログインが必要です。",
		Category: "auth",
		Action:   "ログインまたは新規登録してから再度お試しください。",
	}
}

// NewCatalogUnavailableError はカタログデータの取得失敗エラーを生成する。
func NewCatalogUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeCatalogUnavailable,
		Message:  fmt.Sprintf("データを読み込めませんでした: %s", reason),
		Category: "catalog",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewEmptyCartError は空のカートで注文しようとした場合のエラーを生成する。
func NewEmptyCartError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyCart,
		Message:  "カートが空です。",
		Category: "cart",
		Action:   "商品をカートに追加してから注文してください。",
	}
}

// NewInvalidTransitionError は許可されていない注文ステータス遷移のエラーを生成する。
func NewInvalidTransitionError(from, to OrderStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("注文ステータスを %s から %s に変更できません。", from, to),
		Category: "order",
		Action:   "現在のステータスから遷移可能なステータスを指定してください。",
	}
}

// NewInvalidStatusError は未定義の注文ステータスが指定された場合のエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効な注文ステータスです: %s", status),
		Category: "validation",
		Action:   "under_review、confirmed、shipping、delivered、cancelled のいずれかを指定してください。",
	}
}

// NewConfirmationRequiredError は確認なしで削除しようとした場合のエラーを生成する。
func NewConfirmationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeConfirmationRequired,
		Message:  "削除には確認が必要です。",
		Category: "validation",
		Action:   "confirm=true を指定して再度リクエストしてください。",
	}
}

// NewForbiddenError は管理者権限が必要な操作のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewProductNotFoundError は商品が見つからない場合のエラーを生成する。
func NewProductNotFoundError(productID int64) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("指定された商品が見つかりません: %d", productID),
		Category: "catalog",
		Action:   "商品一覧から商品を選び直してください。",
	}
}

// NewCategoryNotFoundError はカテゴリが見つからない場合のエラーを生成する。
func NewCategoryNotFoundError(categoryID int64) *APIError {
	return &APIError{
		Code:     ErrCodeCategoryNotFound,
		Message:  fmt.Sprintf("指定されたカテゴリが見つかりません: %d", categoryID),
		Category: "catalog",
		Action:   "カテゴリIDを確認してください。",
	}
}

// NewOrderNotFoundError は注文が見つからない場合のエラーを生成する。
func NewOrderNotFoundError(orderID string) *APIError {
	return &APIError{
		Code:     ErrCodeOrderNotFound,
		Message:  fmt.Sprintf("指定された注文が見つかりません: %s", orderID),
		Category: "order",
		Action:   "注文IDを確認してください。",
	}
}

// NewCartItemNotFoundError はカート内に対象商品がない場合のエラーを生成する。
func NewCartItemNotFoundError(productID int64) *APIError {
	return &APIError{
		Code:     ErrCodeCartItemNotFound,
		Message:  fmt.Sprintf("カートに商品がありません: %d", productID),
		Category: "cart",
		Action:   "カートの内容を再読み込みしてください。",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// HasCode はerrがAPIErrorであり、指定コードを持つかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
