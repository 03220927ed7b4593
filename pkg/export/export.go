// Package export turns a skill reply into a downloadable document.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/skills"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
)

// Format is an export document format
type Format string

// Supported formats
const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatDocx     Format = "docx"
	FormatXlsx     Format = "xlsx"
	FormatPptx     Format = "pptx"
	FormatPNG      Format = "png"
	FormatJPG      Format = "jpg"
)

// Formats lists every known format
var Formats = []Format{FormatText, FormatMarkdown, FormatJSON, FormatDocx, FormatXlsx, FormatPptx, FormatPNG, FormatJPG}

var aliases = map[string]Format{
	"text":     FormatText,
	"txt":      FormatText,
	"markdown": FormatMarkdown,
	"md":       FormatMarkdown,
	"json":     FormatJSON,
	"docx":     FormatDocx,
	"word":     FormatDocx,
	"xlsx":     FormatXlsx,
	"excel":    FormatXlsx,
	"pptx":     FormatPptx,
	"ppt":      FormatPptx,
	"png":      FormatPNG,
	"jpg":      FormatJPG,
	"jpeg":     FormatJPG,
}

// ParseFormat resolves a user supplied format name. Unknown names fall back
// to plain text.
func ParseFormat(name string) Format {
	if f, ok := aliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return f
	}
	return FormatText
}

// Extension returns the file extension of f without the dot
func (f Format) Extension() string {
	switch f {
	case FormatText:
		return "txt"
	case FormatMarkdown:
		return "md"
	default:
		return string(f)
	}
}

// ContentType returns the MIME type of f
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown"
	case FormatJSON:
		return "application/json"
	case FormatDocx:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatXlsx:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPptx:
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case FormatPNG:
		return "image/png"
	case FormatJPG:
		return "image/jpeg"
	default:
		return "text/plain"
	}
}

// Document is an exported file
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Encoder renders content into the bytes of one format
type Encoder interface {
	Encode(ctx context.Context, content string) ([]byte, error)
}

// EncoderFunc adapts a function to Encoder
type EncoderFunc func(ctx context.Context, content string) ([]byte, error)

// Encode implements Encoder
func (f EncoderFunc) Encode(ctx context.Context, content string) ([]byte, error) {
	return f(ctx, content)
}

// ErrNoEncoder is returned for formats without a registered encoder
var ErrNoEncoder = errors.New("no encoder registered for format")

// Exporter builds documents using a registry of encoders
type Exporter struct {
	mu       sync.RWMutex
	encoders map[Format]Encoder
	now      func() time.Time
}

// Option configures an Exporter
type Option func(*Exporter)

// WithClock overrides the clock used for file names
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithEncoder registers enc for f
func WithEncoder(f Format, enc Encoder) Option {
	return func(e *Exporter) { e.encoders[f] = enc }
}

// New creates an Exporter with the built-in text, markdown and JSON encoders
func New(opts ...Option) *Exporter {
	e := &Exporter{
		encoders: map[Format]Encoder{
			FormatText:     EncoderFunc(utf8Bytes),
			FormatMarkdown: EncoderFunc(utf8Bytes),
			FormatJSON:     EncoderFunc(jsonBytes),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds or replaces the encoder of f
func (e *Exporter) Register(f Format, enc Encoder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.encoders[f] = enc
}

// Supports reports whether f has an encoder
func (e *Exporter) Supports(f Format) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.encoders[f]
	return ok
}

// Export renders content produced by the named skill as a document of format f
func (e *Exporter) Export(ctx context.Context, skillName, content string, f Format) (Document, error) {
	const op = "export"

	e.mu.RLock()
	enc, ok := e.encoders[f]
	e.mu.RUnlock()
	if !ok {
		return Document{}, failure.Wrap(failure.KindValidation, op, errors.Wrapf(ErrNoEncoder, "%s", f), "unsupported export format")
	}

	data, err := enc.Encode(ctx, content)
	if err != nil {
		return Document{}, failure.Wrap(failure.KindFormat, op, err, "failed to encode "+string(f))
	}

	doc := Document{
		Filename:    Filename(skillName, f, e.now()),
		ContentType: f.ContentType(),
		Data:        data,
	}
	logger.G(ctx).WithField("file", doc.Filename).WithField("bytes", len(data)).Debug("document exported")
	return doc, nil
}

// Filename returns <normalized skill>_<YYYYMMDD_HHMMSS>.<ext>
func Filename(skillName string, f Format, at time.Time) string {
	name := skills.NormalizeName(skillName)
	if name == "" {
		name = "output"
	}
	return name + "_" + at.Format("20060102_150405") + "." + f.Extension()
}

func utf8Bytes(_ context.Context, content string) ([]byte, error) {
	return []byte(content), nil
}

// jsonBytes keeps valid JSON replies as they are and wraps anything else
// into {"content": ...} so the file always parses.
func jsonBytes(_ context.Context, content string) ([]byte, error) {
	trimmed := strings.TrimSpace(content)
	if json.Valid([]byte(trimmed)) {
		return []byte(trimmed), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]string{"content": content}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
