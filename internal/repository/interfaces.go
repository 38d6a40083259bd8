// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/techshop/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別する）でユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// List は全ユーザーを作成日時の昇順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// Count はユーザー数を返す。
	Count(ctx context.Context) (int, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザー情報を上書き更新する。
	Update(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessionsとcart_itemsはCASCADE削除される。
	// 注文は残し、所有者をmodel.GuestUserIDに付け替える。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ProductRepository は商品カタログの永続化インターフェース。
// ストアフロントの読み取りと管理画面の書き込みは同じテーブルを共有する。
type ProductRepository interface {
	// List は全商品をID昇順で返す。
	List(ctx context.Context) ([]*model.Product, error)

	// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Product, error)

	// Count は商品数を返す。
	Count(ctx context.Context) (int, error)

	// Create は商品を作成する。
	Create(ctx context.Context, product *model.Product) error

	// Update は商品を上書き更新する。見つからない場合はfalseを返す。
	Update(ctx context.Context, product *model.Product) (bool, error)

	// Delete は指定IDの商品を削除する。見つからない場合はfalseを返す。
	Delete(ctx context.Context, id int64) (bool, error)

	// Upsert は商品をID単位で一括登録・更新する。インポートと初期投入で使用する。
	Upsert(ctx context.Context, products []*model.Product) error
}

// CategoryRepository はカテゴリの永続化インターフェース。
type CategoryRepository interface {
	// List は全カテゴリをID昇順で返す。
	List(ctx context.Context) ([]*model.Category, error)

	// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Category, error)

	// Create はカテゴリを作成する。
	Create(ctx context.Context, category *model.Category) error

	// Update はカテゴリを上書き更新する。見つからない場合はfalseを返す。
	Update(ctx context.Context, category *model.Category) (bool, error)

	// Delete は指定IDのカテゴリを削除する。商品側の参照は変更しない。
	Delete(ctx context.Context, id int64) (bool, error)

	// Upsert はカテゴリをID単位で一括登録・更新する。
	Upsert(ctx context.Context, categories []*model.Category) error
}

// CartRepository はユーザーごとのカートの永続化インターフェース。
type CartRepository interface {
	// ListByUserID はユーザーのカート内容を追加順に返す。
	ListByUserID(ctx context.Context, userID string) ([]model.CartItem, error)

	// AddOrIncrement は商品が未登録なら数量1で追加し、登録済みなら数量を1増やす。
	// 登録済みの場合、価格・割引率は追加時点の値を維持する。
	// 操作後のラインアイテムを返す。
	AddOrIncrement(ctx context.Context, userID string, item model.CartItem) (*model.CartItem, error)

	// SetQuantity は数量を上書きする。対象がない場合はfalseを返す。
	SetQuantity(ctx context.Context, userID string, productID int64, quantity int) (bool, error)

	// Delete はカートから商品を削除する。対象がなくてもエラーにしない。
	Delete(ctx context.Context, userID string, productID int64) error

	// DeleteByUserID はユーザーのカートを空にする。
	DeleteByUserID(ctx context.Context, userID string) error
}

// OrderBuilder はロック済みのカート内容から注文を組み立てる関数。
// エラーを返した場合はトランザクションをロールバックする。
type OrderBuilder func(items []model.CartItem) (*model.Order, error)

// OrderRepository は注文データの永続化インターフェース。
type OrderRepository interface {
	// CreateFromCart はユーザーのカート行をロックし、buildで組み立てた注文を保存して
	// ロックした行をカートから削除する。すべて同一トランザクションで実行する。
	// 注文番号が重複した場合はErrDuplicateOrderNumberを返す。
	CreateFromCart(ctx context.Context, userID string, build OrderBuilder) (*model.Order, error)

	// FindByID は指定IDの注文を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Order, error)

	// ListByUserID はユーザーの注文を保存順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Order, error)

	// ListAll は全注文を保存順に返す。
	ListAll(ctx context.Context) ([]*model.Order, error)

	// UpdateStatus は注文のステータスを上書きする。履歴は保持しない。
	UpdateStatus(ctx context.Context, id string, status model.OrderStatus) error

	// Stats は管理画面向けの注文集計を返す。
	Stats(ctx context.Context) (*model.OrderStats, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
