package catalogsync

import (
	"errors"
	"time"

	"github.com/hitoshi/techshop/internal/catalog"
	"github.com/hitoshi/techshop/internal/model"
)

// Outcome は1回の同期結果の分類。
type Outcome int

const (
	// OutcomeOK は取り込み成功または未変更（304）。
	OutcomeOK Outcome = iota
	// OutcomeBackoff は取得失敗。指数バックオフで再試行する。
	OutcomeBackoff
	// OutcomeInvalid はカタログの内容が不正。連続回数が閾値に達すると同期を停止する。
	OutcomeInvalid
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = time.Minute
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 6 * time.Hour
	// invalidThreshold は不正なカタログが連続した場合に同期を停止する閾値。
	invalidThreshold = 10
)

// Classify はImportの戻り値を同期結果に分類する。
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, catalog.ErrImportFetch):
		return OutcomeBackoff
	case model.HasCode(err, model.ErrCodeValidation):
		return OutcomeInvalid
	default:
		// 保存失敗などは一時的なものとして扱う
		return OutcomeBackoff
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回1分、2倍ずつ増加、最大6時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
