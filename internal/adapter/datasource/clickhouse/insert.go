// file: internal/adapter/datasource/clickhouse/insert.go
package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// InsertRows 实现 port.Warehouse.InsertRows。
// 每 batchSize 行拼成一条 INSERT ... VALUES 语句执行，最后不足一批的行单独提交。
func (m *Manager) InsertRows(ctx context.Context, table string, columns []string, rows <-chan []string) (int64, error) {
	prefix, err := buildInsertPrefix(table, columns)
	if err != nil {
		return 0, err
	}
	db, _, err := m.conn()
	if err != nil {
		return 0, err
	}

	var (
		inserted int64
		pending  int
		sb       strings.Builder
	)
	flush := func() error {
		if pending == 0 {
			return nil
		}
		if _, err := db.ExecContext(ctx, sb.String()); err != nil {
			return fmt.Errorf("批量写入表 %q 失败 (已写入 %d 行): %w", table, inserted, err)
		}
		inserted += int64(pending)
		slog.Debug("批次写入完成", "table", table, "rows", pending, "total", inserted)
		pending = 0
		sb.Reset()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return inserted, ctx.Err()
		case row, ok := <-rows:
			if !ok {
				return inserted, flush()
			}
			if len(row) != len(columns) {
				return inserted, fmt.Errorf("行字段数 %d 与列数 %d 不一致", len(row), len(columns))
			}
			if pending == 0 {
				sb.WriteString(prefix)
			} else {
				sb.WriteString(", ")
			}
			appendValuesTuple(&sb, row)
			pending++
			if pending >= m.batchSize {
				if err := flush(); err != nil {
					return inserted, err
				}
			}
		}
	}
}
