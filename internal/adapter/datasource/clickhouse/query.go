// file: internal/adapter/datasource/clickhouse/query.go
package clickhouse

import (
	"ClickFlow/internal/core/domain"
	"ClickFlow/internal/core/port"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Preview 实现 port.Warehouse.Preview，返回不含表头的数据网格
func (m *Manager) Preview(ctx context.Context, table string, columns []string, limit int) (domain.Grid, error) {
	query, err := buildSelectSQL(table, columns, limit)
	if err != nil {
		return nil, err
	}
	db, _, err := m.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	grid := make(domain.Grid, 0)
	_, err = scanRows(ctx, db, query, func(row []string) error {
		grid = append(grid, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grid, nil
}

// ExportTable 实现 port.Warehouse.ExportTable
func (m *Manager) ExportTable(ctx context.Context, table string, columns []string, sink port.RowSink) (int64, error) {
	query, err := buildSelectSQL(table, columns, 0)
	if err != nil {
		return 0, err
	}
	return m.export(ctx, query, columns, sink)
}

// ExportJoin 实现 port.Warehouse.ExportJoin
func (m *Manager) ExportJoin(ctx context.Context, tables []string, joinCondition string, columns []string, sink port.RowSink) (int64, error) {
	query, err := buildJoinSQL(tables, joinCondition, columns)
	if err != nil {
		return 0, err
	}
	return m.export(ctx, query, columns, sink)
}

// export 写出表头后流式写出查询结果；sink 的关闭由调用方负责
func (m *Manager) export(ctx context.Context, query string, header []string, sink port.RowSink) (int64, error) {
	db, _, err := m.conn()
	if err != nil {
		return 0, err
	}
	if err := sink.WriteRow(header); err != nil {
		return 0, fmt.Errorf("写入表头失败: %w", err)
	}

	slog.Debug("开始导出 ClickHouse 数据", "query", query)
	count, err := scanRows(ctx, db, query, sink.WriteRow)
	if err != nil {
		return count, err
	}
	return count, nil
}

// scanRows 执行查询，把每行转换为文本后交给 fn，返回处理的行数
func scanRows(ctx context.Context, db *sql.DB, query string, fn func([]string) error) (int64, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("执行查询失败: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return 0, err
	}
	layouts := make([]string, len(types))
	for i, ct := range types {
		layouts[i] = timeLayoutFor(ct.DatabaseTypeName())
	}

	var count int64
	dest := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return count, fmt.Errorf("扫描第 %d 行失败: %w", count+1, err)
		}
		row := make([]string, len(dest))
		for i, v := range dest {
			row[i] = cellString(v, layouts[i])
		}
		if err := fn(row); err != nil {
			return count, err
		}
		count++
	}
	return count, rows.Err()
}
