// file: internal/adapter/datasource/clickhouse/schema.go
package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// ListTables 实现 port.Warehouse.ListTables (SHOW TABLES FROM <db>)
func (m *Manager) ListTables(ctx context.Context) ([]string, error) {
	db, database, err := m.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	query := "SHOW TABLES"
	if database != "" {
		query += " FROM " + quoteIdent(database)
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询表列表失败: %w", err)
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("扫描表名失败: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// ListColumns 实现 port.Warehouse.ListColumns (DESCRIBE TABLE)，结果进入 LRU 缓存
func (m *Manager) ListColumns(ctx context.Context, table string) ([]string, error) {
	if cached, ok := m.columns.Get(table); ok {
		return slices.Clone(cached), nil
	}

	gen := m.generation()
	db, _, err := m.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, "DESCRIBE TABLE "+quoteIdent(table))
	if err != nil {
		return nil, fmt.Errorf("DESCRIBE TABLE %q 失败: %w", table, err)
	}
	defer rows.Close()

	fields, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	nameIdx := slices.Index(fields, "name")
	if nameIdx < 0 {
		return nil, fmt.Errorf("DESCRIBE TABLE %q 结果缺少 name 列", table)
	}

	columns := make([]string, 0)
	for rows.Next() {
		dest := make([]any, len(fields))
		ptrs := make([]any, len(fields))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("扫描表 %q 的列信息失败: %w", table, err)
		}
		columns = append(columns, cellString(dest[nameIdx], ""))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if m.cacheColumns(gen, table, columns) {
		slog.Debug("表结构已缓存", "table", table, "columns", len(columns))
	}
	return slices.Clone(columns), nil
}
