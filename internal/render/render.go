// Package render turns a communication's line items into documents.
// Rendering is synchronous and has no side effects.
package render

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	texttemplate "text/template"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultCatalogue []byte

var ErrUnknownTemplate = errors.New("unknown template")

const (
	ContentTypeCSV  = "text/csv"
	ContentTypeHTML = "text/html"
)

type Column struct {
	Header string `yaml:"header"`
	Field  string `yaml:"field"`
}

type templateDef struct {
	Title     string   `yaml:"title"`
	File      string   `yaml:"file"`
	Subject   string   `yaml:"subject"`
	Intro     string   `yaml:"intro"`
	Closing   string   `yaml:"closing"`
	ShowTotal bool     `yaml:"show_total"`
	Columns   []Column `yaml:"columns"`
}

type catalogue struct {
	Company   string                 `yaml:"company"`
	Templates map[string]templateDef `yaml:"templates"`
}

type compiled struct {
	def     templateDef
	subject *texttemplate.Template
	intro   *template.Template
}

// Line is one item row.
type Line struct {
	Position      int
	ProductName   string
	Specification string
	Site          string
	PRGroup       string
	Quantity      decimal.Decimal
	Unit          string
	Price         decimal.Decimal
	Remark        string
}

// Amount is Quantity x Price.
func (l Line) Amount() decimal.Decimal {
	return l.Quantity.Mul(l.Price)
}

// Data is the input of one render.
type Data struct {
	Reference string
	Recipient string
	Lines     []Line
	Remark    string
	Message   string
	Date      time.Time
}

// Document is one rendered file.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Bundle is everything a send needs: the files plus mail subject and body.
type Bundle struct {
	Subject   string
	Body      string
	Documents []Document
	Total     decimal.Decimal
}

// Renderer renders bundles from a template catalogue.
type Renderer struct {
	company   string
	templates map[string]compiled
}

// New loads the built-in catalogue.
func New() (*Renderer, error) {
	return NewFromYAML(defaultCatalogue)
}

// NewFromYAML loads a catalogue document.
func NewFromYAML(doc []byte) (*Renderer, error) {
	var c catalogue
	if err := yaml.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("parsing template catalogue: %w", err)
	}
	if len(c.Templates) == 0 {
		return nil, errors.New("template catalogue is empty")
	}

	r := &Renderer{company: c.Company, templates: make(map[string]compiled, len(c.Templates))}
	for key, def := range c.Templates {
		if len(def.Columns) == 0 {
			return nil, fmt.Errorf("template %s has no columns", key)
		}
		for _, col := range def.Columns {
			if _, ok := fields[col.Field]; !ok {
				return nil, fmt.Errorf("template %s: unknown field %q", key, col.Field)
			}
		}
		subject, err := texttemplate.New(key + ".subject").Parse(def.Subject)
		if err != nil {
			return nil, fmt.Errorf("template %s subject: %w", key, err)
		}
		intro, err := template.New(key + ".intro").Parse(def.Intro)
		if err != nil {
			return nil, fmt.Errorf("template %s intro: %w", key, err)
		}
		if def.File == "" {
			def.File = key
		}
		r.templates[key] = compiled{def: def, subject: subject, intro: intro}
	}
	return r, nil
}

// Keys lists the available template keys.
func (r *Renderer) Keys() []string {
	keys := make([]string, 0, len(r.templates))
	for k := range r.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var fields = map[string]func(Line) string{
	"position":      func(l Line) string { return strconv.Itoa(l.Position) },
	"product_name":  func(l Line) string { return l.ProductName },
	"specification": func(l Line) string { return l.Specification },
	"site":          func(l Line) string { return l.Site },
	"pr_group":      func(l Line) string { return l.PRGroup },
	"quantity":      func(l Line) string { return l.Quantity.String() },
	"unit":          func(l Line) string { return l.Unit },
	"price":         func(l Line) string { return l.Price.StringFixed(2) },
	"amount":        func(l Line) string { return l.Amount().StringFixed(2) },
	"remark":        func(l Line) string { return l.Remark },
}

type headerData struct {
	Reference string
	Company   string
	Recipient string
}

// Render produces the bundle for templateKey.
func (r *Renderer) Render(templateKey string, data Data) (Bundle, error) {
	t, ok := r.templates[templateKey]
	if !ok {
		return Bundle{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateKey)
	}
	if data.Date.IsZero() {
		data.Date = time.Now()
	}

	hd := headerData{Reference: data.Reference, Company: r.company, Recipient: data.Recipient}

	var subject bytes.Buffer
	if err := t.subject.Execute(&subject, hd); err != nil {
		return Bundle{}, fmt.Errorf("rendering subject: %w", err)
	}
	var intro bytes.Buffer
	if err := t.intro.Execute(&intro, hd); err != nil {
		return Bundle{}, fmt.Errorf("rendering intro: %w", err)
	}

	total := decimal.Zero
	for _, l := range data.Lines {
		total = total.Add(l.Amount())
	}

	sheet, err := r.csv(t.def, data, total)
	if err != nil {
		return Bundle{}, err
	}

	var letter bytes.Buffer
	err = letterTemplate.Execute(&letter, letterData{
		Title:     t.def.Title,
		Company:   r.company,
		Reference: data.Reference,
		Date:      data.Date.Format("02 Jan 2006"),
		Intro:     template.HTML(intro.String()),
		Message:   data.Message,
		Columns:   t.def.Columns,
		Rows:      rows(t.def.Columns, data.Lines),
		ShowTotal: t.def.ShowTotal,
		Total:     total.StringFixed(2),
		Remark:    data.Remark,
		Closing:   t.def.Closing,
	})
	if err != nil {
		return Bundle{}, fmt.Errorf("rendering letter: %w", err)
	}

	base := t.def.File
	if data.Reference != "" {
		base += "-" + data.Reference
	}
	return Bundle{
		Subject: subject.String(),
		Body:    letter.String(),
		Total:   total,
		Documents: []Document{
			{Name: base + ".csv", ContentType: ContentTypeCSV, Data: sheet},
			{Name: base + ".html", ContentType: ContentTypeHTML, Data: letter.Bytes()},
		},
	}, nil
}

func rows(cols []Column, lines []Line) [][]string {
	out := make([][]string, len(lines))
	for i, l := range lines {
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = fields[c.Field](l)
		}
		out[i] = row
	}
	return out
}

func (r *Renderer) csv(def templateDef, data Data, total decimal.Decimal) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		header[i] = c.Header
	}
	records := append([][]string{header}, rows(def.Columns, data.Lines)...)
	if def.ShowTotal {
		footer := make([]string, len(def.Columns))
		footer[0] = "Total"
		footer[len(footer)-1] = total.StringFixed(2)
		records = append(records, footer)
	}
	if data.Remark != "" {
		records = append(records, []string{"Remark", data.Remark})
	}

	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("writing csv: %w", err)
	}
	return buf.Bytes(), nil
}

type letterData struct {
	Title     string
	Company   string
	Reference string
	Date      string
	Intro     template.HTML
	Message   string
	Columns   []Column
	Rows      [][]string
	ShowTotal bool
	Total     string
	Remark    string
	Closing   string
}

var letterTemplate = template.Must(template.New("letter").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}} {{.Reference}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Company}}{{if .Reference}} &middot; Ref. {{.Reference}}{{end}} &middot; {{.Date}}</p>
<p>{{.Intro}}</p>
{{if .Message}}<p>{{.Message}}</p>{{end}}
<table border="1" cellpadding="4" cellspacing="0">
<thead><tr>{{range .Columns}}<th>{{.Header}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
{{if .ShowTotal}}<tfoot><tr><td colspan="{{len .Columns}}">Total: {{.Total}}</td></tr></tfoot>{{end}}
</table>
{{if .Remark}}<p><strong>Remark:</strong> {{.Remark}}</p>{{end}}
<p>{{.Closing}}</p>
</body></html>
`))
