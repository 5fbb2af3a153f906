// file: internal/adapter/datasource/flatfile/writer.go
package flatfile

import (
	"ClickFlow/internal/core/port"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// fileSink 先写入同目录下的临时文件，Close 时改名为目标文件
type fileSink struct {
	path string
	tmp  *os.File
	w    *csv.Writer
	rows int64
	done bool
}

var _ port.RowSink = (*fileSink)(nil)

// Create 实现 port.FlatFileStore.Create
func (s *Store) Create(name string, delimiter rune) (port.RowSink, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录 '%s' 失败: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("创建临时输出文件失败: %w", err)
	}
	w := csv.NewWriter(tmp)
	w.Comma = delimiter
	return &fileSink{path: path, tmp: tmp, w: w}, nil
}

func (f *fileSink) WriteRow(row []string) error {
	if f.done {
		return errors.New("输出文件已关闭")
	}
	if err := f.w.Write(row); err != nil {
		return fmt.Errorf("写入 '%s' 失败: %w", f.path, err)
	}
	f.rows++
	return nil
}

// Close 刷新缓冲并原子地替换目标文件
func (f *fileSink) Close() error {
	if f.done {
		return nil
	}
	f.done = true

	f.w.Flush()
	if err := f.w.Error(); err != nil {
		_ = f.tmp.Close()
		_ = os.Remove(f.tmp.Name())
		return fmt.Errorf("刷新输出缓冲失败: %w", err)
	}
	if err := f.tmp.Close(); err != nil {
		_ = os.Remove(f.tmp.Name())
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(f.tmp.Name(), f.path); err != nil {
		_ = os.Remove(f.tmp.Name())
		return fmt.Errorf("替换输出文件 '%s' 失败: %w", f.path, err)
	}
	slog.Info("输出文件已写入", "path", f.path, "rows", f.rows)
	return nil
}

// Abort 丢弃临时文件，目标文件保持原样
func (f *fileSink) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	_ = f.tmp.Close()
	if err := os.Remove(f.tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
