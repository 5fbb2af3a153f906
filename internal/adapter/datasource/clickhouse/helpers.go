// Package clickhouse file: internal/adapter/datasource/clickhouse/helpers.go
package clickhouse

import (
	"ClickFlow/internal/core/port"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// quoteIdent 用反引号包裹标识符，内部反引号加倍
func quoteIdent(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

// quoteIdents 依次转义一组标识符并以逗号拼接
func quoteIdents(identifiers []string) string {
	quoted := make([]string, len(identifiers))
	for i, id := range identifiers {
		quoted[i] = quoteIdent(id)
	}
	return strings.Join(quoted, ", ")
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// quoteLiteral 生成 ClickHouse 字符串字面量
func quoteLiteral(value string) string {
	return "'" + literalEscaper.Replace(value) + "'"
}

// buildSelectSQL 构建单表查询，limit<=0 表示不限制
func buildSelectSQL(table string, columns []string, limit int) (string, error) {
	if table == "" {
		return "", errors.New("表名不能为空 (buildSelectSQL)")
	}
	if len(columns) == 0 {
		return "", port.ErrNoColumns
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(quoteIdents(columns))
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(table))
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	return sb.String(), nil
}

// validateJoinCondition 拒绝可能拼接出多条语句或注释的 JOIN 条件
func validateJoinCondition(cond string) error {
	trimmed := strings.TrimSpace(cond)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", port.ErrInvalidJoinCondition)
	}
	for _, bad := range []string{";", "--", "/*", "*/"} {
		if strings.Contains(trimmed, bad) {
			return fmt.Errorf("%w: %q is not allowed", port.ErrInvalidJoinCondition, bad)
		}
	}
	return nil
}

// buildJoinSQL 构建多表 JOIN 查询，每个后续表都使用同一个 ON 条件。
// 列名可能带表前缀 (t.col)，按点分段分别转义。
func buildJoinSQL(tables []string, joinCondition string, columns []string) (string, error) {
	if len(tables) < 2 {
		return "", port.ErrJoinNeedsTables
	}
	if len(columns) == 0 {
		return "", port.ErrNoColumns
	}
	if err := validateJoinCondition(joinCondition); err != nil {
		return "", err
	}

	qualified := make([]string, len(columns))
	for i, col := range columns {
		parts := strings.Split(col, ".")
		for j, p := range parts {
			parts[j] = quoteIdent(p)
		}
		qualified[i] = strings.Join(parts, ".")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(qualified, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(tables[0]))
	for _, t := range tables[1:] {
		sb.WriteString(" JOIN ")
		sb.WriteString(quoteIdent(t))
		sb.WriteString(" ON ")
		sb.WriteString(strings.TrimSpace(joinCondition))
	}
	return sb.String(), nil
}

// buildInsertPrefix 返回 "INSERT INTO `t` (`a`, `b`) VALUES "
func buildInsertPrefix(table string, columns []string) (string, error) {
	if table == "" {
		return "", errors.New("表名不能为空 (buildInsertPrefix)")
	}
	if len(columns) == 0 {
		return "", port.ErrNoColumns
	}
	return "INSERT INTO " + quoteIdent(table) + " (" + quoteIdents(columns) + ") VALUES ", nil
}

// appendValuesTuple 把一行值以 ('a', 'b') 形式追加到 sb
func appendValuesTuple(sb *strings.Builder, row []string) {
	sb.WriteByte('(')
	for i, v := range row {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteLiteral(v))
	}
	sb.WriteByte(')')
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// timeLayoutFor 按列的 ClickHouse 类型选择时间格式：Date/Date32 只保留日期，
// DateTime64(p) 保留 p 位小数，其余按 DateTime 处理
func timeLayoutFor(dbType string) string {
	t := strings.TrimSpace(dbType)
	for _, wrapper := range []string{"Nullable(", "LowCardinality("} {
		for strings.HasPrefix(t, wrapper) && strings.HasSuffix(t, ")") {
			t = strings.TrimSpace(t[len(wrapper) : len(t)-1])
		}
	}
	switch {
	case t == "Date" || t == "Date32":
		return dateLayout
	case strings.HasPrefix(t, "DateTime64("):
		args := strings.TrimSuffix(strings.TrimPrefix(t, "DateTime64("), ")")
		precision, _, _ := strings.Cut(args, ",")
		p, err := strconv.Atoi(strings.TrimSpace(precision))
		if err != nil || p <= 0 {
			return dateTimeLayout
		}
		return dateTimeLayout + "." + strings.Repeat("0", min(p, 9))
	default:
		return dateTimeLayout
	}
}

// cellString 把驱动返回的任意值转换为预览/导出使用的文本，NULL 为空串；
// 时间值按 layout 格式化，layout 为空时用 DateTime 格式
func cellString(v any, layout string) string {
	if layout == "" {
		layout = dateTimeLayout
	}
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case *string:
		if val == nil {
			return ""
		}
		return *val
	case time.Time:
		return val.Format(layout)
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.Format(layout)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
