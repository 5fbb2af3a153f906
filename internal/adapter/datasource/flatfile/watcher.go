// file: internal/adapter/datasource/flatfile/watcher.go
package flatfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartWatcher 监视根目录，文件变化时失效对应的表头缓存。ctx 结束时停止。
func (s *Store) StartWatcher(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建 fsnotify watcher 失败: %w", err)
	}
	if err := watcher.Add(s.root); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("添加根目录 '%s' 到监视器失败: %w", s.root, err)
	}

	// 已有子目录也加入监视
	entries, _ := os.ReadDir(s.root)
	for _, e := range entries {
		if e.IsDir() {
			sub := filepath.Join(s.root, e.Name())
			if err := watcher.Add(sub); err != nil {
				slog.Warn("添加子目录到监视器失败", "dir", sub, "error", err)
			}
		}
	}

	go func() {
		defer watcher.Close()
		slog.Info("平面文件监视器已启动", "root", s.root)
		for {
			select {
			case <-ctx.Done():
				slog.Info("平面文件监视器已停止")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				s.handleFsEvent(event, watcher)
			case errWatch, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("文件监视器报告错误", "error", errWatch)
			}
		}
	}()
	return nil
}

// handleFsEvent 处理单个文件系统事件，同一路径的连续事件合并处理
func (s *Store) handleFsEvent(event fsnotify.Event, watcher *fsnotify.Watcher) {
	cleanPath := filepath.Clean(event.Name)

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
			if err := watcher.Add(cleanPath); err == nil {
				slog.Debug("新目录已加入监视", "dir", cleanPath)
			}
			return
		}
	}
	// 输出时的临时文件
	if strings.HasSuffix(cleanPath, ".tmp") {
		return
	}

	s.eventTimersMu.Lock()
	defer s.eventTimersMu.Unlock()
	if timer, exists := s.eventTimers[cleanPath]; exists {
		timer.Stop()
	}
	s.eventTimers[cleanPath] = time.AfterFunc(debounceDuration, func() {
		s.evict(cleanPath)
		slog.Debug("文件已变化，表头缓存失效", "path", cleanPath, "op", event.Op.String())
		s.eventTimersMu.Lock()
		delete(s.eventTimers, cleanPath)
		s.eventTimersMu.Unlock()
	})
}
