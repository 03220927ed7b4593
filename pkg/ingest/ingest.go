// Package ingest extracts plain text from reference files attached to a task
// or a chat message so it can be inlined into prompts.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/pkg/errors"
)

// Attachment is an uploaded reference file
type Attachment struct {
	Name string
	Data []byte
}

type extractor func(Attachment) (string, error)

var extractors = map[string]extractor{
	".txt":  plainText,
	".md":   plainText,
	".csv":  plainText,
	".json": prettyJSON,
	".html": htmlText,
	".htm":  htmlText,
	".docx": docxText,
	".xlsx": xlsxText,
	".pptx": pptxText,
	".png":  imageSummary,
	".jpg":  imageSummary,
	".jpeg": imageSummary,
	".gif":  imageSummary,
	".bmp":  imageSummary,
	".webp": imageSummary,
}

// Supported reports whether name has a dedicated extractor
func Supported(name string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Extract returns the text content of att. It never fails: unreadable files
// yield an inline marker so the caller can still build a prompt.
func Extract(att Attachment) string {
	extract, ok := extractors[strings.ToLower(filepath.Ext(att.Name))]
	if !ok {
		extract = plainText
	}

	text, err := extract(att)
	if err != nil {
		return fmt.Sprintf("[failed to read %s: %s]", att.Name, err)
	}
	return text
}

// Concat extracts every attachment into one reference block, each file
// introduced by a "=== name ===" header.
func Concat(atts []Attachment) string {
	var b strings.Builder
	for _, att := range atts {
		fmt.Fprintf(&b, "\n\n=== %s ===\n%s", att.Name, Extract(att))
	}
	return b.String()
}

// AppendToMessage inlines the attachments after a chat message
func AppendToMessage(message string, atts []Attachment) string {
	if len(atts) == 0 {
		return message
	}
	return message + Concat(atts)
}

func plainText(att Attachment) (string, error) {
	if !utf8.Valid(att.Data) {
		return "", errors.New("content is not valid UTF-8 text")
	}
	return string(att.Data), nil
}

func prettyJSON(att Attachment) (string, error) {
	var v any
	if err := json.Unmarshal(att.Data, &v); err != nil {
		return "", errors.Wrap(err, "invalid JSON")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func htmlText(att Attachment) (string, error) {
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(string(att.Data))
	if err != nil {
		return "", errors.Wrap(err, "failed to convert HTML to markdown")
	}
	return markdown, nil
}

func imageSummary(att Attachment) (string, error) {
	return fmt.Sprintf("[image file: %s, size: %.1fKB]", att.Name, float64(len(att.Data))/1024), nil
}
