// Package admin は管理画面向けのユーザー・商品・カテゴリ・注文の管理操作を提供する。
//
// 商品とカテゴリはストアフロントと同じカタログストアに書き込む。
// 削除は明示的な確認（confirm）がない限り実行しない。
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/techshop/internal/auth"
	"github.com/hitoshi/techshop/internal/catalog"
	"github.com/hitoshi/techshop/internal/idgen"
	"github.com/hitoshi/techshop/internal/model"
	"github.com/hitoshi/techshop/internal/order"
	"github.com/hitoshi/techshop/internal/repository"
)

// Sanitizer は管理画面から入力されたテキストの無害化インターフェース。
type Sanitizer interface {
	Sanitize(text string) string
}

// OrderService は管理画面が利用する注文操作。*order.Manager が実装する。
type OrderService interface {
	ListAll(ctx context.Context) ([]*model.Order, error)
	Get(ctx context.Context, orderID string) (*model.Order, error)
	SetStatus(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error)
}

// CatalogImporter は外部カタログの取り込み。*catalog.Importer が実装する。
type CatalogImporter interface {
	Import(ctx context.Context, rawURL string) (*catalog.ImportResult, error)
}

// Stats は管理画面のダッシュボード集計。
type Stats struct {
	Users         int   `json:"users"`
	Products      int   `json:"products"`
	Orders        int   `json:"orders"`
	PendingOrders int   `json:"pending_orders"`
	Revenue       int64 `json:"revenue"`
}

// UserInput はユーザー作成・更新の入力。更新時にPasswordが空ならパスワードは変更しない。
type UserInput struct {
	ID       string
	Name     string
	Email    string
	Phone    string
	Address  string
	Password string
	IsAdmin  bool
}

// Console は管理画面のサービス層。
type Console struct {
	users      repository.UserRepository
	products   repository.ProductRepository
	categories repository.CategoryRepository
	orderRepo  repository.OrderRepository
	orders     OrderService
	importer   CatalogImporter
	ids        *idgen.Generator
	sanitizer  Sanitizer
	bcryptCost int
	logger     *slog.Logger
}

// Deps はConsoleの依存関係。
type Deps struct {
	Users      repository.UserRepository
	Products   repository.ProductRepository
	Categories repository.CategoryRepository
	OrderRepo  repository.OrderRepository
	Orders     OrderService
	Importer   CatalogImporter
	IDs        *idgen.Generator
	Sanitizer  Sanitizer
	BcryptCost int
	Logger     *slog.Logger
}

// NewConsole はConsoleを生成する。
func NewConsole(d Deps) *Console {
	return &Console{
		users:      d.Users,
		products:   d.Products,
		categories: d.Categories,
		orderRepo:  d.OrderRepo,
		orders:     d.Orders,
		importer:   d.Importer,
		ids:        d.IDs,
		sanitizer:  d.Sanitizer,
		bcryptCost: d.BcryptCost,
		logger:     d.Logger,
	}
}

func requireConfirm(confirm bool) error {
	if !confirm {
		return model.NewConfirmationRequiredError()
	}
	return nil
}

// --- ユーザー ---

// ListUsers は全ユーザーを返す。
func (c *Console) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := c.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// GetUser は指定IDのユーザーを返す。
func (c *Console) GetUser(ctx context.Context, id string) (*model.User, error) {
	// users.idはUUID型。形式が違うIDは存在しないものとして扱う。
	if uuid.Validate(id) != nil {
		return nil, model.NewUserNotFoundError()
	}
	user, err := c.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// CreateUser はユーザーを作成する。IDが空の場合は新しく割り当てる。
func (c *Console) CreateUser(ctx context.Context, in UserInput) (*model.User, error) {
	user := &model.User{ID: in.ID, IsAdmin: in.IsAdmin}
	if user.ID == "" {
		user.ID = uuid.New().String()
	} else if _, err := uuid.Parse(user.ID); err != nil {
		return nil, model.NewValidationError("ユーザーIDはUUID形式で指定してください")
	}
	if in.Password == "" {
		return nil, model.NewValidationError("パスワードは必須です")
	}
	if err := c.applyUserInput(user, in); err != nil {
		return nil, err
	}
	if err := c.checkEmailFree(ctx, user.Email, user.ID); err != nil {
		return nil, err
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := c.users.Create(ctx, user); err != nil {
		return nil, c.userWriteError(err, user.Email)
	}

	c.logger.Info("管理画面でユーザーを作成しました", slog.String("user_id", user.ID))
	return user, nil
}

// UpdateUser はユーザーを上書き更新する。
func (c *Console) UpdateUser(ctx context.Context, id string, in UserInput) (*model.User, error) {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	user.IsAdmin = in.IsAdmin
	if err := c.applyUserInput(user, in); err != nil {
		return nil, err
	}
	if err := c.checkEmailFree(ctx, user.Email, user.ID); err != nil {
		return nil, err
	}

	user.UpdatedAt = time.Now()
	if err := c.users.Update(ctx, user); err != nil {
		return nil, c.userWriteError(err, user.Email)
	}
	return user, nil
}

// DeleteUser はユーザーを削除する。注文は削除せず、所有者をゲストに付け替える。
func (c *Console) DeleteUser(ctx context.Context, id string, confirm bool) error {
	if err := requireConfirm(confirm); err != nil {
		return err
	}
	if _, err := c.GetUser(ctx, id); err != nil {
		return err
	}
	if err := c.users.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	c.logger.Info("管理画面でユーザーを削除しました", slog.String("user_id", id))
	return nil
}

func (c *Console) applyUserInput(user *model.User, in UserInput) error {
	user.Name = c.sanitizer.Sanitize(in.Name)
	user.Email = c.sanitizer.Sanitize(in.Email)
	user.Phone = c.sanitizer.Sanitize(in.Phone)
	user.Address = c.sanitizer.Sanitize(in.Address)
	if user.Name == "" {
		return model.NewValidationError("氏名は必須です")
	}
	if user.Email == "" {
		return model.NewValidationError("メールアドレスは必須です")
	}
	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password, c.bcryptCost)
		if err != nil {
			return model.NewValidationError(err.Error())
		}
		user.PasswordHash = hash
	}
	return nil
}

func (c *Console) checkEmailFree(ctx context.Context, email, selfID string) error {
	other, err := c.users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if other != nil && other.ID != selfID {
		return model.NewDuplicateEmailError(email)
	}
	return nil
}

func (c *Console) userWriteError(err error, email string) error {
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return model.NewDuplicateEmailError(email)
	}
	return fmt.Errorf("ユーザーの保存に失敗しました: %w", err)
}

// --- 商品 ---

// ListProducts は全商品を返す。
func (c *Console) ListProducts(ctx context.Context) ([]*model.Product, error) {
	products, err := c.products.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗しました: %w", err)
	}
	return products, nil
}

// CreateProduct は商品を作成する。IDが0の場合は新しく割り当てる。
func (c *Console) CreateProduct(ctx context.Context, p *model.Product) (*model.Product, error) {
	if p.ID == 0 {
		p.ID = c.ids.Next()
	}
	if err := c.normalizeProduct(p); err != nil {
		return nil, err
	}
	if err := c.products.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("商品の作成に失敗しました: %w", err)
	}
	c.logger.Info("管理画面で商品を作成しました", slog.Int64("product_id", p.ID))
	return p, nil
}

// UpdateProduct は商品を上書き更新する。
func (c *Console) UpdateProduct(ctx context.Context, id int64, p *model.Product) (*model.Product, error) {
	p.ID = id
	if err := c.normalizeProduct(p); err != nil {
		return nil, err
	}
	found, err := c.products.Update(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("商品の更新に失敗しました: %w", err)
	}
	if !found {
		return nil, model.NewProductNotFoundError(id)
	}
	return p, nil
}

// DeleteProduct は商品を削除する。カート内の同じ商品は削除しない。
func (c *Console) DeleteProduct(ctx context.Context, id int64, confirm bool) error {
	if err := requireConfirm(confirm); err != nil {
		return err
	}
	found, err := c.products.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("商品の削除に失敗しました: %w", err)
	}
	if !found {
		return model.NewProductNotFoundError(id)
	}
	c.logger.Info("管理画面で商品を削除しました", slog.Int64("product_id", id))
	return nil
}

func (c *Console) normalizeProduct(p *model.Product) error {
	p.Name = c.sanitizer.Sanitize(p.Name)
	p.Description = c.sanitizer.Sanitize(p.Description)
	p.Image = c.sanitizer.Sanitize(p.Image)
	p.Category = c.sanitizer.Sanitize(p.Category)
	switch {
	case p.Name == "":
		return model.NewValidationError("商品名は必須です")
	case p.Price < 0:
		return model.NewValidationError("価格は0以上で入力してください")
	case p.Stock < 0:
		return model.NewValidationError("在庫数は0以上で入力してください")
	}
	return nil
}

// --- カテゴリ ---

// ListCategories は全カテゴリを返す。
func (c *Console) ListCategories(ctx context.Context) ([]*model.Category, error) {
	categories, err := c.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	return categories, nil
}

// CreateCategory はカテゴリを作成する。IDが0の場合は新しく割り当てる。
func (c *Console) CreateCategory(ctx context.Context, cat *model.Category) (*model.Category, error) {
	if cat.ID == 0 {
		cat.ID = c.ids.Next()
	}
	if err := c.normalizeCategory(cat); err != nil {
		return nil, err
	}
	if err := c.categories.Create(ctx, cat); err != nil {
		return nil, fmt.Errorf("カテゴリの作成に失敗しました: %w", err)
	}
	c.logger.Info("管理画面でカテゴリを作成しました", slog.Int64("category_id", cat.ID))
	return cat, nil
}

// UpdateCategory はカテゴリを上書き更新する。
// 名前を変更しても、旧名を参照する商品は変更しない。
func (c *Console) UpdateCategory(ctx context.Context, id int64, cat *model.Category) (*model.Category, error) {
	cat.ID = id
	if err := c.normalizeCategory(cat); err != nil {
		return nil, err
	}
	found, err := c.categories.Update(ctx, cat)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの更新に失敗しました: %w", err)
	}
	if !found {
		return nil, model.NewCategoryNotFoundError(id)
	}
	return cat, nil
}

// DeleteCategory はカテゴリを削除する。商品側の参照は変更しない。
func (c *Console) DeleteCategory(ctx context.Context, id int64, confirm bool) error {
	if err := requireConfirm(confirm); err != nil {
		return err
	}
	found, err := c.categories.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("カテゴリの削除に失敗しました: %w", err)
	}
	if !found {
		return model.NewCategoryNotFoundError(id)
	}
	c.logger.Info("管理画面でカテゴリを削除しました", slog.Int64("category_id", id))
	return nil
}

func (c *Console) normalizeCategory(cat *model.Category) error {
	cat.Name = c.sanitizer.Sanitize(cat.Name)
	cat.Description = c.sanitizer.Sanitize(cat.Description)
	cat.Icon = c.sanitizer.Sanitize(cat.Icon)
	cat.Color = c.sanitizer.Sanitize(cat.Color)
	if cat.Name == "" {
		return model.NewValidationError("カテゴリ名は必須です")
	}
	if cat.DiscountPercent < 0 || cat.DiscountPercent > 100 {
		return model.NewValidationError("割引率は0から100の範囲で入力してください")
	}
	return nil
}

// --- 注文 ---

// ListOrders は全注文を新しい順に返す。
func (c *Console) ListOrders(ctx context.Context) ([]*model.Order, error) {
	orders, err := c.orders.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return order.NewestFirst(orders), nil
}

// GetOrder は指定IDの注文を返す。
func (c *Console) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return c.orders.Get(ctx, id)
}

// SetOrderStatus は注文ステータスを変更する。文字列は遷移表に従って検証する。
func (c *Console) SetOrderStatus(ctx context.Context, id, status string) (*model.Order, error) {
	s, err := order.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return c.orders.SetStatus(ctx, id, s)
}

// --- 集計・取り込み ---

// Stats はダッシュボードの集計値を返す。
func (c *Console) Stats(ctx context.Context) (*Stats, error) {
	users, err := c.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー数の取得に失敗しました: %w", err)
	}
	products, err := c.products.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("商品数の取得に失敗しました: %w", err)
	}
	orderStats, err := c.orderRepo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("注文集計の取得に失敗しました: %w", err)
	}
	return &Stats{
		Users:         users,
		Products:      products,
		Orders:        orderStats.TotalOrders,
		PendingOrders: orderStats.PendingOrders,
		Revenue:       orderStats.Revenue,
	}, nil
}

// ImportCatalog は外部カタログを取り込む。
func (c *Console) ImportCatalog(ctx context.Context, rawURL string) (*catalog.ImportResult, error) {
	if rawURL == "" {
		return nil, model.NewValidationError("カタログURLは必須です")
	}
	return c.importer.Import(ctx, rawURL)
}
