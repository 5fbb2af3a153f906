// file: internal/cli/output.go
package cli

import (
	"ClickFlow/internal/core/domain"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

func (a *app) writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func (a *app) renderList(w io.Writer, title string, items []string) error {
	if a.jsonOutput() {
		if items == nil {
			items = []string{}
		}
		return a.writeJSON(w, items)
	}
	t := newTable(w)
	t.AppendHeader(table.Row{title})
	for _, it := range items {
		t.AppendRow(table.Row{it})
	}
	t.Render()
	fmt.Fprintf(w, "(%d rows)\n", len(items))
	return nil
}

// renderGrid 渲染数据预览，空单元格显示为 N/A
func (a *app) renderGrid(w io.Writer, header []string, grid domain.Grid) error {
	if a.jsonOutput() {
		if grid == nil {
			grid = domain.Grid{}
		}
		return a.writeJSON(w, grid)
	}
	t := newTable(w)
	hr := make(table.Row, len(header))
	for i, h := range header {
		hr[i] = h
	}
	t.AppendHeader(hr)
	for _, rec := range grid {
		row := make(table.Row, len(rec))
		for i, v := range rec {
			if v == "" {
				row[i] = "N/A"
				continue
			}
			row[i] = v
		}
		t.AppendRow(row)
	}
	t.Render()
	fmt.Fprintf(w, "(%d rows)\n", len(grid))
	return nil
}

func (a *app) renderResult(w io.Writer, res *domain.IngestionResult) error {
	if a.jsonOutput() {
		return a.writeJSON(w, res)
	}
	fmt.Fprintf(w, "Ingested %d records: %s\n", res.RecordCount, res.Message)
	if res.JobID != "" {
		fmt.Fprintf(w, "job: %s\n", res.JobID)
	}
	return nil
}

func (a *app) renderJobs(w io.Writer, jobs []*domain.Job) error {
	if a.jsonOutput() {
		if jobs == nil {
			jobs = []*domain.Job{}
		}
		return a.writeJSON(w, jobs)
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "KIND", "SOURCE", "TABLE", "FILE", "RECORDS", "STATUS", "STARTED", "DURATION"})
	for _, j := range jobs {
		dur := "-"
		if j.FinishedAt != nil {
			dur = j.FinishedAt.Sub(j.StartedAt).Round(time.Millisecond).String()
		}
		status := string(j.Status)
		if j.Error != "" {
			status += ": " + truncate(j.Error, 40)
		}
		t.AppendRow(table.Row{
			j.ID, j.Kind, j.Source, j.TableName, j.FileName, j.RecordCount,
			status, j.StartedAt.Local().Format(time.DateTime), dur,
		})
	}
	t.Render()
	fmt.Fprintf(w, "(%d rows)\n", len(jobs))
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
