package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// maxPasswordBytes はbcryptが扱える入力の上限バイト数。
const maxPasswordBytes = 72

// HashPassword はパスワードをbcryptでハッシュ化する。
func HashPassword(password string, cost int) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("password exceeds %d bytes", maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword はハッシュとパスワードが一致するかを返す。
// 比較は定数時間で行われる。ハッシュの形式が不正な場合もfalseを返す。
func VerifyPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
