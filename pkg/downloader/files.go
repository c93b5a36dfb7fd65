package downloader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DefaultMaxAge は CleanupOldFiles の既定の保持期間です。
const DefaultMaxAge = 24 * time.Hour

// CleanupResult は古いファイルの掃除結果なのだ。
type CleanupResult struct {
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
}

// CleanupOldFiles は dir 直下で更新時刻が maxAge より古い通常ファイルを削除するのだ。
// 個々の削除失敗は Errors に数えるだけなのだよ。
func CleanupOldFiles(dir string, maxAge time.Duration, now time.Time) (CleanupResult, error) {
	var res CleanupResult
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, nil
		}
		return res, fmt.Errorf("ディレクトリの読み込みに失敗しました: %w", err)
	}

	cutoff := now.Add(-maxAge)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			res.Errors++
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			res.Errors++
			continue
		}
		res.Deleted++
	}
	return res, nil
}

// DirectorySize は dir 配下の通常ファイルの合計バイト数を再帰的に求めるのだ。
func DirectorySize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ディレクトリサイズの計算に失敗しました: %w", err)
	}
	return total, nil
}

// FormatFileSize はバイト数を人が読める単位に整形するのだ。
func FormatFileSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	units := []string{"KB", "MB", "GB"}
	v := float64(n) / unit
	i := 0
	for v >= unit && i < len(units)-1 {
		v /= unit
		i++
	}
	return fmt.Sprintf("%.2f %s", v, units[i])
}
