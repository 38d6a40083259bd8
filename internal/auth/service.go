// Package auth はメールアドレスとパスワードによる認証、セッション管理、プロフィール更新を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/techshop/internal/metrics"
	"github.com/hitoshi/techshop/internal/model"
	"github.com/hitoshi/techshop/internal/repository"
)

// Sanitizer はプロフィールのテキスト項目を無害化するインターフェース。
type Sanitizer interface {
	Sanitize(text string) string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// RegisterInput は新規登録の入力。
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// ProfileUpdate はプロフィールの部分更新。nilの項目は変更しない。
type ProfileUpdate struct {
	Name    *string
	Email   *string
	Phone   *string
	Address *string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	sanitizer   Sanitizer
	metrics     metrics.MetricsCollector
	config      ServiceConfig
	dummyHash   string
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	sanitizer Sanitizer,
	m metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	s := &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		metrics:     m,
		config:      config,
	}
	// 存在しないメールアドレスでのログインでも同じコストの比較を1回行う
	if h, err := HashPassword(uuid.NewString(), config.BcryptCost); err == nil {
		s.dummyHash = h
	}
	return s
}

// Register はユーザーを新規登録し、セッションを発行する。
// メールアドレスが既存ユーザーと一致する場合（大文字小文字を区別）はDuplicateEmailを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.Session, *model.User, error) {
	name := s.sanitizer.Sanitize(in.Name)
	email := strings.TrimSpace(in.Email)
	phone := s.sanitizer.Sanitize(in.Phone)

	if name == "" {
		return nil, nil, model.NewValidationError("氏名は必須です")
	}
	if err := validateEmail(email); err != nil {
		return nil, nil, err
	}
	if len(in.Password) < MinPasswordLength {
		return nil, nil, model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください", MinPasswordLength))
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewDuplicateEmailError(email)
	}

	hash, err := HashPassword(in.Password, s.config.BcryptCost)
	if err != nil {
		return nil, nil, model.NewValidationError(err.Error())
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 同時登録で一意制約に当たった場合
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, nil, model.NewDuplicateEmailError(email)
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("new user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return session, user, nil
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
// どちらが誤っているかは区別せずInvalidCredentialsを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	email = strings.TrimSpace(email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		VerifyPassword(s.dummyHash, password)
		s.metrics.RecordLoginFailure()
		return nil, nil, model.NewInvalidCredentialsError()
	}
	if !VerifyPassword(user.PasswordHash, password) {
		s.metrics.RecordLoginFailure()
		slog.Warn("login failed", slog.String("user_id", user.ID))
		return nil, nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return session, user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// CurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効、またはユーザーが削除済みの場合はnilを返す。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// UpdateProfile はユーザー情報に指定項目をマージして保存する。
// userIDが空（未ログイン）の場合は何もせずnilを返す。
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*model.User, error) {
	if userID == "" {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if upd.Name != nil {
		name := s.sanitizer.Sanitize(*upd.Name)
		if name == "" {
			return nil, model.NewValidationError("氏名は必須です")
		}
		user.Name = name
	}
	if upd.Phone != nil {
		user.Phone = s.sanitizer.Sanitize(*upd.Phone)
	}
	if upd.Address != nil {
		user.Address = s.sanitizer.Sanitize(*upd.Address)
	}
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email != user.Email {
			if err := validateEmail(email); err != nil {
				return nil, err
			}
			other, err := s.userRepo.FindByEmail(ctx, email)
			if err != nil {
				return nil, fmt.Errorf("failed to find user by email: %w", err)
			}
			if other != nil && other.ID != user.ID {
				return nil, model.NewDuplicateEmailError(email)
			}
			user.Email = email
		}
	}

	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewDuplicateEmailError(user.Email)
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// BootstrapAdmin はユーザーが1人もいない場合に管理者を1人作成する。
// 作成した場合はtrueを返す。
func (s *Service) BootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}

	count, err := s.userRepo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	hash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return false, err
	}
	now := time.Now()
	admin := &model.User{
		ID:           uuid.New().String(),
		Name:         "Administrator",
		Email:        email,
		IsAdmin:      true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		return false, fmt.Errorf("failed to create admin user: %w", err)
	}

	slog.Info("administrator created", slog.String("user_id", admin.ID), slog.String("email", email))
	return true, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func validateEmail(email string) error {
	if email == "" {
		return model.NewValidationError("メールアドレスは必須です")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewValidationError(fmt.Sprintf("メールアドレスの形式が正しくありません: %s", email))
	}
	return nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
