// file: internal/ui/page.go
package ui

import (
	"ClickFlow/internal/core/domain"
	"strconv"

	. "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"
)

const emptyCell = "N/A"

func ingestPage(s FormState) Node {
	sec := s.Sections()
	return html.HTML(
		html.Lang("en"),
		html.Head(
			html.Meta(html.Charset("utf-8")),
			html.Meta(html.Name("viewport"), html.Content("width=device-width, initial-scale=1")),
			html.TitleEl(Text("ClickHouse & Flat File Ingestion Tool")),
			html.StyleEl(Raw(stylesheet)),
		),
		html.Body(
			html.Div(html.Class("App"),
				html.H1(html.Class("title"), Text("ClickHouse & Flat File Ingestion Tool")),
				html.Form(html.ID("ingest-form"), html.Method("post"), html.Action(routeIngest),
					connectionSection(s),
					sourceSection(s),
					If(sec.TablePicker, tableSection(s)),
					If(sec.FileInput, fileSection(s)),
					If(sec.Columns, columnsSection(s)),
					actionSection(s),
					hiddenState(s),
				),
				statusSection(s),
			),
		),
	)
}

func loginPage(username, message string) Node {
	return html.HTML(
		html.Lang("en"),
		html.Head(
			html.Meta(html.Charset("utf-8")),
			html.TitleEl(Text("Sign in - ClickHouse & Flat File Ingestion Tool")),
			html.StyleEl(Raw(stylesheet)),
		),
		html.Body(
			html.Div(html.Class("App"),
				html.H1(html.Class("title"), Text("Sign in")),
				html.Form(html.ID("login-form"), html.Method("post"), html.Action(routeLogin), html.Class("config-section"),
					labeledInput("Username", "username", "text", username),
					labeledInput("Password", "password", "password", ""),
					html.Button(html.Type("submit"), html.Class("button"), Text("Sign in")),
				),
				If(message != "", html.P(html.Class("login-error"), Text(message))),
			),
		),
	)
}

func connectionSection(s FormState) Node {
	c := s.Connection
	port := ""
	if c.Port > 0 {
		port = strconv.Itoa(c.Port)
	}
	return html.Div(html.Class("config-section"),
		labeledInput("Host", "host", "text", c.Host),
		labeledInput("Port", "port", "number", port),
		labeledInput("Database", "database", "text", c.Database),
		labeledInput("Username", "username", "text", c.Username),
		labeledInput("Password", "password", "password", ""),
		labeledInput("JWT Token", "jwtToken", "text", c.JWTToken),
		html.Button(html.Type("submit"), html.Class("button"), Attr("formaction", routeConfigure), Text("Configure")),
	)
}

func sourceSection(s FormState) Node {
	return html.Div(html.Class("source-section"),
		html.Label(html.For("source"), Text("Source: ")),
		html.Select(html.ID("source"), html.Name("source"), html.Class("select-field"), submitOnChange(routeSource),
			option(string(domain.SourceClickHouse), string(s.Source), "ClickHouse"),
			option(string(domain.SourceFlatFile), string(s.Source), "Flat File"),
		),
		html.Button(html.Type("submit"), html.Class("button"), Attr("formaction", routeSource), Text("Switch")),
	)
}

func tableSection(s FormState) Node {
	opts := make([]Node, 0, len(s.Tables)+1)
	opts = append(opts, option("", s.TableName, "Select Table"))
	for _, t := range s.Tables {
		opts = append(opts, option(t, s.TableName, t))
	}
	return html.Div(html.Class("table-section"),
		html.Select(html.Name("tableName"), html.Class("select-field"), submitOnChange(routeColumns), Group(opts)),
		html.Button(html.Type("submit"), html.Class("button"), Attr("formaction", routeColumns), Text("Load Columns")),
	)
}

func fileSection(s FormState) Node {
	opts := make([]Node, 0, len(s.Tables)+1)
	opts = append(opts, option("", s.TargetTable, "Select Target Table"))
	for _, t := range s.Tables {
		opts = append(opts, option(t, s.TargetTable, t))
	}
	return html.Div(html.Class("file-section"),
		labeledInput("File Name", "flatFileName", "text", s.FlatFileName),
		html.Button(html.Type("submit"), html.Class("button"), Attr("formaction", routeColumns), Text("Load Columns")),
		html.Label(Text("Target Table: ")),
		html.Select(html.Name("targetTable"), html.Class("select-field"), Group(opts)),
	)
}

func columnsSection(s FormState) Node {
	items := make([]Node, 0, len(s.Columns))
	for i, col := range s.Columns {
		id := "col-" + strconv.Itoa(i)
		attrs := []Node{html.Type("checkbox"), html.ID(id), html.Name("selected"), html.Value(col), html.Class("checkbox")}
		for _, sel := range s.Selected {
			if sel == col {
				attrs = append(attrs, html.Checked())
				break
			}
		}
		items = append(items, html.Div(html.Class("checkbox-item"),
			html.Input(attrs...),
			html.Label(html.For(id), Text(col)),
		))
	}
	return html.Div(html.Class("columns-section"),
		html.H3(Text("Select Columns:")),
		Group(items),
	)
}

func actionSection(s FormState) Node {
	return html.Div(html.Class("action-section"),
		If(s.Source != domain.SourceFlatFile, labeledInput("File Name", "fileName", "text", s.FileName)),
		labeledInput("Delimiter", "delimiter", "text", s.Delimiter),
		html.Button(html.Type("submit"), html.Class("button"), Attr("formaction", routeIngest), Text("Ingest")),
		html.Button(html.Type("submit"), html.Class("button"), Attr("formaction", routePreview), Text("Refresh Data")),
	)
}

// hiddenState 携带不在可见输入框中的状态
func hiddenState(s FormState) Node {
	nodes := make([]Node, 0, len(s.Tables)+len(s.Columns)+2)
	for _, t := range s.Tables {
		nodes = append(nodes, hidden("tables", t))
	}
	for _, c := range s.Columns {
		nodes = append(nodes, hidden("available", c))
	}
	if s.Source == domain.SourceFlatFile {
		nodes = append(nodes, hidden("fileName", s.FileName))
	} else {
		nodes = append(nodes, hidden("flatFileName", s.FlatFileName), hidden("targetTable", s.TargetTable))
	}
	return Group(nodes)
}

func statusSection(s FormState) Node {
	return html.Div(html.Class("status-section"),
		html.H3(html.ID("status"), Text("Status: "+s.Status)),
		If(s.Sections().Preview, previewTable(s.PreviewHeader(), s.Data)),
	)
}

func previewTable(header []string, data domain.Grid) Node {
	head := make([]Node, 0, len(header))
	for _, h := range header {
		head = append(head, html.Th(Text(h)))
	}
	rows := make([]Node, 0, len(data))
	for _, row := range data {
		cells := make([]Node, 0, len(row))
		for _, cell := range row {
			if cell == "" {
				cell = emptyCell
			}
			cells = append(cells, html.Td(Text(cell)))
		}
		rows = append(rows, html.Tr(Group(cells)))
	}
	return html.Div(html.Class("table-container"),
		html.Table(html.Class("data-table"),
			html.THead(html.Tr(Group(head))),
			html.TBody(Group(rows)),
		),
	)
}

func labeledInput(label, name, typ, value string) Node {
	return Group([]Node{
		html.Label(html.For(name), Text(label+": ")),
		html.Input(html.ID(name), html.Name(name), html.Type(typ), html.Value(value), html.Class("input-field")),
	})
}

func option(value, selected, label string) Node {
	if value == selected {
		return html.Option(html.Value(value), html.Selected(), Text(label))
	}
	return html.Option(html.Value(value), Text(label))
}

func hidden(name, value string) Node {
	return html.Input(html.Type("hidden"), html.Name(name), html.Value(value))
}

func submitOnChange(action string) Node {
	return Attr("onchange", "this.form.action='"+action+"';this.form.submit()")
}

const stylesheet = `
body{font-family:Inter,system-ui,sans-serif;margin:0;background:#f6f8fa;color:#1f2328}
.App{max-width:1100px;margin:0 auto;padding:24px}
.title{font-size:1.6rem;margin-bottom:16px}
.config-section,.source-section,.table-section,.file-section,.action-section,.columns-section{background:#fff;border:1px solid #d0d7de;border-radius:6px;padding:12px;margin-bottom:12px;display:flex;flex-wrap:wrap;gap:8px;align-items:center}
.columns-section{display:block}
.input-field,.select-field{padding:4px 8px;border:1px solid #d0d7de;border-radius:4px}
.button{padding:5px 14px;border:1px solid #1f883d;background:#1f883d;color:#fff;border-radius:4px;cursor:pointer}
.checkbox-item{display:inline-flex;gap:4px;margin-right:12px}
.table-container{overflow:auto;max-height:480px}
.data-table{border-collapse:collapse;width:100%;background:#fff}
.login-error{color:#cf222e}
.data-table th,.data-table td{border:1px solid #d0d7de;padding:4px 8px;text-align:left;font-size:.9rem}
`
