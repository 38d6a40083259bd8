// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はジョブの実行間隔のデフォルト値。
const DefaultInterval = 24 * time.Hour

// SessionExpirer は期限切れセッションを削除するインターフェース。
type SessionExpirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 削除は冪等で、対象がなくてもエラーにならない。
type CleanupJob struct {
	sessions SessionExpirer
	logger   *slog.Logger
	Interval time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions SessionExpirer, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		logger:   logger,
		Interval: DefaultInterval,
	}
}

// Run は期限切れセッションを1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、その後Intervalごとにジョブを実行する。
// ctxがキャンセルされるまでブロックする。失敗はログに残して次の周期で再実行する。
func (j *CleanupJob) Start(ctx context.Context) {
	_ = j.Run(ctx)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
