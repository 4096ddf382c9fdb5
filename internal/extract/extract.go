// Package extract pulls plain text out of uploaded paper files.
package extract

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"github.com/kailas-cloud/papernest/internal/domain"
)

// Format is a supported document type.
type Format string

// Supported formats.
const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatText Format = "text"
)

// Result is the extracted text of one file.
type Result struct {
	Format Format
	Text   string
	Pages  int
}

// Extractor converts PDF, DOCX and plain text files to text.
type Extractor struct {
	logger  *slog.Logger
	parsers map[Format]func([]byte) (Result, error)
}

// New creates an extractor. A nil logger discards output.
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Extractor{logger: logger}
	e.parsers = map[Format]func([]byte) (Result, error){
		FormatPDF:  e.extractPDF,
		FormatDOCX: e.extractDOCX,
		FormatText: extractText,
	}
	return e
}

// DetectFormat picks the format from the file extension, falling back to content sniffing.
func DetectFormat(filename string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	case ".txt", ".text", ".md", ".markdown", ".tex":
		return FormatText, nil
	case "":
		if bytes.HasPrefix(data, []byte("%PDF-")) {
			return FormatPDF, nil
		}
		if utf8.Valid(data) {
			return FormatText, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedDocument, filename)
}

// Extract returns the text of data. Files without extractable text are rejected.
func (e *Extractor) Extract(filename string, data []byte) (Result, error) {
	format, err := DetectFormat(filename, data)
	if err != nil {
		return Result{}, err
	}

	res, err := e.parse(format, data)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", domain.ErrUnsupportedDocument, filename, err)
	}

	res.Text = strings.TrimSpace(cleanExtraNewlines(res.Text))
	if res.Text == "" {
		return Result{}, fmt.Errorf("%w: %s contains no extractable text", domain.ErrUnsupportedDocument, filename)
	}

	e.logger.Info("Extracted document text",
		"file", filename,
		"format", string(res.Format),
		"pages", res.Pages,
		"runes", utf8.RuneCountInString(res.Text),
	)
	return res, nil
}

// parse runs the parser for format. Parsers of malformed binary input may
// panic; that is reported as an error.
func (e *Extractor) parse(format Format, data []byte) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Warn("Document parser panicked", "format", string(format), "panic", fmt.Sprint(p))
			err = fmt.Errorf("parse %s: %v", format, p)
		}
	}()
	return e.parsers[format](data)
}

func (e *Extractor) extractPDF(data []byte) (Result, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("open pdf: %w", err)
	}

	pages := r.NumPage()
	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("Failed to extract pdf page", "page", i, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}
	}
	return Result{Format: FormatPDF, Text: sb.String(), Pages: pages}, nil
}

var (
	reParagraphEnd = regexp.MustCompile(`</w:p>`)
	reTextRun      = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	reTab          = regexp.MustCompile(`<w:tab/>`)
)

func (e *Extractor) extractDOCX(data []byte) (Result, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()

	return Result{Format: FormatDOCX, Text: docxText(r.Editable().GetContent())}, nil
}

// docxText flattens WordprocessingML into one line per paragraph.
func docxText(xml string) string {
	var sb strings.Builder
	for _, para := range reParagraphEnd.Split(xml, -1) {
		para = reTab.ReplaceAllString(para, "<w:t>\t</w:t>")
		var line strings.Builder
		for _, m := range reTextRun.FindAllStringSubmatch(para, -1) {
			line.WriteString(html.UnescapeString(m[1]))
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func extractText(data []byte) (Result, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")) // UTF-8 BOM
	if !utf8.Valid(data) {
		return Result{}, fmt.Errorf("text is not valid UTF-8")
	}
	return Result{Format: FormatText, Text: strings.ReplaceAll(string(data), "\r\n", "\n")}, nil
}

var reMultiNewlines = regexp.MustCompile(`\n{3,}`)

func cleanExtraNewlines(text string) string {
	return reMultiNewlines.ReplaceAllString(text, "\n\n")
}
