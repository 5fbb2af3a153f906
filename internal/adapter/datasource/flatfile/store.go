// Package flatfile 平面文件 (CSV/TSV) 数据源适配器
// internal/adapter/datasource/flatfile/store.go
package flatfile

import (
	"ClickFlow/internal/core/port"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// 断言 *Store 实现 port.FlatFileStore 接口，编译期校验
var _ port.FlatFileStore = (*Store)(nil)

const debounceDuration = 500 * time.Millisecond

// Options 是 Store 的构造参数
type Options struct {
	BaseDir   string
	HeaderTTL time.Duration
}

// Store 把所有文件访问限制在 root 目录之下，并缓存文件表头
type Store struct {
	root string

	// headers 缓存 path+分隔符 → 表头，文件变更时由 watcher 失效
	headers *cache.Cache

	eventTimers   map[string]*time.Timer
	eventTimersMu sync.Mutex
}

// NewStore 创建 Store，根目录不存在时自动创建
func NewStore(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.BaseDir) == "" {
		return nil, fmt.Errorf("平面文件根目录不能为空")
	}
	root, err := filepath.Abs(opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("解析平面文件根目录 '%s' 失败: %w", opts.BaseDir, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建平面文件根目录 '%s' 失败: %w", root, err)
	}
	ttl := opts.HeaderTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	slog.Info("平面文件存储已就绪", "root", root, "header_ttl", ttl)
	return &Store{
		root:        root,
		headers:     cache.New(ttl, 2*ttl),
		eventTimers: make(map[string]*time.Timer),
	}, nil
}

// Root 返回根目录的绝对路径
func (s *Store) Root() string { return s.root }

// Resolve 实现 port.FlatFileStore.Resolve
func (s *Store) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: file name is empty", port.ErrInvalidPath)
	}
	if filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %q must be relative", port.ErrInvalidPath, name)
	}
	full := filepath.Join(s.root, name)
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the data directory", port.ErrInvalidPath, name)
	}
	return full, nil
}

func headerKey(path string, delimiter rune) string {
	return path + "\x00" + string(delimiter)
}

// evict 删除某个文件的全部表头缓存 (不同分隔符各一项)
func (s *Store) evict(path string) {
	prefix := path + "\x00"
	for key := range s.headers.Items() {
		if strings.HasPrefix(key, prefix) {
			s.headers.Delete(key)
		}
	}
}
