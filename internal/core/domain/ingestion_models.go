// Package domain file: internal/core/domain/ingestion_models.go
package domain

import (
	"strings"
	"time"
)

// SourceKind 表示一次读取/摄取的数据来源
type SourceKind string

const (
	SourceClickHouse SourceKind = "ClickHouse"
	SourceFlatFile   SourceKind = "FlatFile"
)

// ParseSourceKind 大小写不敏感地解析来源类型，无法识别时 ok 为 false
func ParseSourceKind(s string) (SourceKind, bool) {
	switch {
	case strings.EqualFold(s, string(SourceClickHouse)):
		return SourceClickHouse, true
	case strings.EqualFold(s, string(SourceFlatFile)):
		return SourceFlatFile, true
	default:
		return "", false
	}
}

// ConnectionDetails 是用户在界面上填写的 ClickHouse 连接参数
type ConnectionDetails struct {
	Host     string `json:"host" mapstructure:"host" binding:"required"`
	Port     int    `json:"port" mapstructure:"port" binding:"required,min=1,max=65535"`
	Database string `json:"database" mapstructure:"database"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	JWTToken string `json:"jwtToken" mapstructure:"jwt_token"`
}

// Redacted 返回隐藏了密码和令牌的副本，用于日志输出
func (c ConnectionDetails) Redacted() ConnectionDetails {
	if c.Password != "" {
		c.Password = "***"
	}
	if c.JWTToken != "" {
		c.JWTToken = "***"
	}
	return c
}

// IngestionRequest 描述一次单表摄取
// Source=ClickHouse: TableName -> FileName; Source=FlatFile: FileName -> TableName
type IngestionRequest struct {
	Source    string   `json:"source" mapstructure:"source"`
	TableName string   `json:"tableName" mapstructure:"table_name"`
	FileName  string   `json:"fileName" mapstructure:"file_name"`
	Columns   []string `json:"columns" mapstructure:"columns"`
	Delimiter string   `json:"delimiter" mapstructure:"delimiter"`
}

// JoinIngestionRequest 描述一次多表 JOIN 导出到平面文件
type JoinIngestionRequest struct {
	Tables        []string `json:"tables"`
	JoinCondition string   `json:"joinCondition" binding:"required"`
	Columns       []string `json:"columns"`
	FileName      string   `json:"fileName"`
	Delimiter     string   `json:"delimiter"`
}

// IngestionResult 是摄取接口的返回体
type IngestionResult struct {
	RecordCount int64  `json:"recordCount"`
	Message     string `json:"message"`
	JobID       string `json:"jobId,omitempty"`
}

// DataRequest 描述一次数据预览
type DataRequest struct {
	Source    string
	TableName string
	FileName  string
	Delimiter string
	Columns   []string
	Limit     int
}

// Grid 是预览用的二维单元格数据，NULL 以空字符串表示
type Grid [][]string

// JobKind 区分普通摄取和 JOIN 导出
type JobKind string

const (
	JobKindIngest JobKind = "ingest"
	JobKindJoin   JobKind = "join"
)

// JobStatus 是摄取任务的生命周期状态
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job 是一条持久化的摄取任务记录
type Job struct {
	ID          string     `json:"id"`
	Kind        JobKind    `json:"kind"`
	Source      string     `json:"source"`
	TableName   string     `json:"tableName"`
	FileName    string     `json:"fileName"`
	Columns     []string   `json:"columns"`
	RecordCount int64      `json:"recordCount"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}
