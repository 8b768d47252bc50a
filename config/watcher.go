package config

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 👀 人设文件热加载
// =============================================================================

// ChangeKind 文件变化类型
type ChangeKind uint8

const (
	Created ChangeKind = iota + 1
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("ChangeKind(%d)", uint8(k))
}

// Change 一次检测到的变化
type Change struct {
	Path string
	Kind ChangeKind
	At   time.Time
}

// FileWatcher 轮询单个文件并比较内容摘要。
// 只 touch 不改内容不会触发回调；文件暂时不存在时等待它出现。
type FileWatcher struct {
	path     string
	interval time.Duration
	onChange func(Change)
	logger   *zap.Logger

	digest [sha256.Size]byte
	exists bool
}

// NewFileWatcher interval <= 0 时为 1 秒
func NewFileWatcher(path string, interval time.Duration, onChange func(Change), logger *zap.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &FileWatcher{
		path:     abs,
		interval: interval,
		onChange: onChange,
		logger:   logger.With(zap.String("component", "file_watcher"), zap.String("path", abs)),
	}
	// 以当前内容为基线，启动时不触发
	if _, err := w.poll(time.Now()); err != nil {
		return nil, err
	}
	if !w.exists {
		w.logger.Warn("watched file does not exist yet")
	}
	return w, nil
}

// Path 绝对路径
func (w *FileWatcher) Path() string { return w.path }

// Run 阻塞直到 ctx 结束。读文件出错只记日志，下个周期重试。
func (w *FileWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.Info("file watcher started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file watcher stopped")
			return nil
		case now := <-ticker.C:
			change, err := w.poll(now)
			if err != nil {
				w.logger.Warn("poll failed", zap.Error(err))
				continue
			}
			if change != nil && w.onChange != nil {
				w.logger.Debug("file changed", zap.Stringer("kind", change.Kind))
				w.onChange(*change)
			}
		}
	}
}

// poll 只在 Run 的协程（或构造时）调用
func (w *FileWatcher) poll(now time.Time) (*Change, error) {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		if !w.exists {
			return nil, nil
		}
		w.exists = false
		w.digest = [sha256.Size]byte{}
		return &Change{Path: w.path, Kind: Removed, At: now}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", w.path, err)
	}

	sum := sha256.Sum256(data)
	kind := Modified
	switch {
	case !w.exists:
		kind = Created
	case sum == w.digest:
		return nil, nil
	}
	w.exists, w.digest = true, sum
	return &Change{Path: w.path, Kind: kind, At: now}, nil
}
