// Package ui 是服务端渲染的摄取表单页面
package ui

import (
	"ClickFlow/internal/core/domain"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// 表单初始值，与早期前端保持一致
const (
	defaultHost       = "localhost"
	defaultPort       = 8123
	defaultDatabase   = "uk_price_paid"
	defaultUsername   = "ingestor_user"
	defaultOutputFile = "output.csv"
	defaultInputFile  = "input.csv"
	defaultDelimiter  = ","
)

// FormState 是页面的全部视图状态。页面本身无会话，状态随每次提交往返。
type FormState struct {
	Connection domain.ConnectionDetails

	Source    domain.SourceKind
	Tables    []string
	TableName string

	// FileName 是 ClickHouse 模式下的输出文件
	FileName string
	// FlatFileName 是 FlatFile 模式下的输入文件
	FlatFileName string
	// TargetTable 是 FlatFile 模式下写入的 ClickHouse 表
	TargetTable string
	Delimiter   string

	Columns  []string
	Selected []string

	Status string
	Data   domain.Grid
}

// DefaultFormState 返回首次打开页面时的状态
func DefaultFormState() FormState {
	return FormState{
		Connection: domain.ConnectionDetails{
			Host:     defaultHost,
			Port:     defaultPort,
			Database: defaultDatabase,
			Username: defaultUsername,
		},
		Source:       domain.SourceClickHouse,
		FileName:     defaultOutputFile,
		FlatFileName: defaultInputFile,
		Delimiter:    defaultDelimiter,
	}
}

// Sections 描述当前来源下各区域是否可见
type Sections struct {
	TablePicker bool
	FileInput   bool
	TargetTable bool
	Columns     bool
	Preview     bool
}

func (s FormState) Sections() Sections {
	clickhouse := s.Source != domain.SourceFlatFile
	return Sections{
		TablePicker: clickhouse,
		FileInput:   !clickhouse,
		TargetTable: !clickhouse,
		Columns:     len(s.Columns) > 0,
		Preview:     len(s.Data) > 0,
	}
}

// SetSource 切换来源并清空预览数据
func (s *FormState) SetSource(kind domain.SourceKind) {
	s.Source = kind
	s.Data = nil
}

// ToggleColumn 勾选时追加一次，取消勾选时移除该列的全部出现
func (s *FormState) ToggleColumn(col string, checked bool) {
	if checked {
		if !slices.Contains(s.Selected, col) {
			s.Selected = append(s.Selected, col)
		}
		return
	}
	s.Selected = slices.DeleteFunc(s.Selected, func(c string) bool { return c == col })
}

// ActiveFileName 返回当前来源下"文件名"输入框对应的值
func (s FormState) ActiveFileName() string {
	if s.Source == domain.SourceFlatFile {
		return s.FlatFileName
	}
	return s.FileName
}

// IngestRequest 按当前表单值构造摄取请求
func (s FormState) IngestRequest() domain.IngestionRequest {
	req := domain.IngestionRequest{
		Source:    string(s.Source),
		FileName:  s.ActiveFileName(),
		Columns:   slices.Clone(s.Selected),
		Delimiter: s.Delimiter,
	}
	if s.Source == domain.SourceFlatFile {
		req.TableName = s.TargetTable
	} else {
		req.TableName = s.TableName
	}
	return req
}

// DataRequest 按当前表单值构造预览请求，未选列时由服务端取全部列
func (s FormState) DataRequest() domain.DataRequest {
	req := domain.DataRequest{
		Source:    string(s.Source),
		FileName:  s.ActiveFileName(),
		Delimiter: s.Delimiter,
		Columns:   slices.Clone(s.Selected),
	}
	if s.Source != domain.SourceFlatFile {
		req.TableName = s.TableName
	}
	return req
}

// PreviewHeader 返回预览表格的表头：优先已选列，否则全部列
func (s FormState) PreviewHeader() []string {
	if len(s.Selected) > 0 {
		return s.Selected
	}
	return s.Columns
}

// parseForm 从提交的表单还原状态。密码不随页面往返，只在配置连接时提交。
func parseForm(values url.Values) (FormState, error) {
	s := DefaultFormState()
	get := func(key string) string { return strings.TrimSpace(values.Get(key)) }

	s.Connection.Host = get("host")
	s.Connection.Database = get("database")
	s.Connection.Username = get("username")
	s.Connection.Password = values.Get("password")
	s.Connection.JWTToken = get("jwtToken")

	var portErr error
	if raw := get("port"); raw != "" {
		s.Connection.Port, portErr = strconv.Atoi(raw)
	}

	if kind, ok := domain.ParseSourceKind(get("source")); ok {
		s.Source = kind
	}
	s.Tables = nonEmpty(values["tables"])
	s.TableName = get("tableName")
	s.FileName = get("fileName")
	s.FlatFileName = get("flatFileName")
	s.TargetTable = get("targetTable")
	s.Delimiter = values.Get("delimiter")
	s.Columns = nonEmpty(values["available"])
	for _, col := range nonEmpty(values["selected"]) {
		s.ToggleColumn(col, true)
	}
	return s, portErr
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
