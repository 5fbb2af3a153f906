// file: internal/adapter/datasource/flatfile/reader.go
package flatfile

import (
	"ClickFlow/internal/core/domain"
	"ClickFlow/internal/core/port"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
)

const utf8BOM = "\ufeff"

// openReader 打开文件并返回配置好分隔符的 csv.Reader
func (s *Store) openReader(name string, delimiter rune) (*os.File, *csv.Reader, string, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, "", fmt.Errorf("%w: %s", port.ErrFileNotFound, name)
		}
		return nil, nil, "", fmt.Errorf("打开文件 '%s' 失败: %w", name, err)
	}
	r := csv.NewReader(f)
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return f, r, path, nil
}

// readHeader 读取首条记录作为表头
func readHeader(r *csv.Reader) ([]string, error) {
	record, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, port.ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}
	header := make([]string, len(record))
	for i, h := range record {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		header[i] = strings.TrimSpace(h)
	}
	return header, nil
}

// Header 实现 port.FlatFileStore.Header
func (s *Store) Header(ctx context.Context, name string, delimiter rune) ([]string, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	if cached, ok := s.headers.Get(headerKey(path, delimiter)); ok {
		return slices.Clone(cached.([]string)), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, r, _, err := s.openReader(name, delimiter)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	s.headers.SetDefault(headerKey(path, delimiter), header)
	return slices.Clone(header), nil
}

// projection 按列名计算列下标，columns 为空时选择全部列
func projection(header, columns []string) ([]int, error) {
	if len(columns) == 0 {
		idx := make([]int, len(header))
		for i := range header {
			idx[i] = i
		}
		return idx, nil
	}
	idx := make([]int, len(columns))
	for i, col := range columns {
		pos := slices.Index(header, strings.TrimSpace(col))
		if pos < 0 {
			return nil, fmt.Errorf("%w: %s", port.ErrColumnNotFound, col)
		}
		idx[i] = pos
	}
	return idx, nil
}

// scan 逐行读取数据并投影，fn 返回 false 时提前结束；返回跳过的短行数
func (s *Store) scan(ctx context.Context, name string, delimiter rune, columns []string, fn func([]string) (bool, error)) (int64, error) {
	f, r, path, err := s.openReader(name, delimiter)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	header, err := readHeader(r)
	if err != nil {
		return 0, err
	}
	s.headers.SetDefault(headerKey(path, delimiter), header)

	idx, err := projection(header, columns)
	if err != nil {
		return 0, err
	}
	need := 0
	for _, i := range idx {
		need = max(need, i+1)
	}

	var skipped int64
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return skipped, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return skipped, fmt.Errorf("读取 '%s' 第 %d 行失败: %w", name, line, err)
		}
		if len(record) < need {
			skipped++
			continue
		}
		row := make([]string, len(idx))
		for i, pos := range idx {
			row[i] = record[pos]
		}
		more, err := fn(row)
		if err != nil {
			return skipped, err
		}
		if !more {
			break
		}
	}
	if skipped > 0 {
		slog.Warn("跳过字段数不足的行", "file", name, "skipped", skipped)
	}
	return skipped, nil
}

// Stream 实现 port.FlatFileStore.Stream，不关闭 out
func (s *Store) Stream(ctx context.Context, name string, delimiter rune, columns []string, out chan<- []string) (int64, error) {
	return s.scan(ctx, name, delimiter, columns, func(row []string) (bool, error) {
		select {
		case out <- row:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	})
}

// Preview 实现 port.FlatFileStore.Preview，limit<=0 时返回全部数据行
func (s *Store) Preview(ctx context.Context, name string, delimiter rune, columns []string, limit int) (domain.Grid, error) {
	grid := make(domain.Grid, 0)
	if limit > 0 {
		grid = make(domain.Grid, 0, min(limit, 1024))
	}
	_, err := s.scan(ctx, name, delimiter, columns, func(row []string) (bool, error) {
		grid = append(grid, row)
		return limit <= 0 || len(grid) < limit, nil
	})
	if err != nil {
		return nil, err
	}
	return grid, nil
}
