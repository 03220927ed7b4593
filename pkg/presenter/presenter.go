// Package presenter provides consistent CLI output for user-facing messages:
// status lines, SOP and skill views, diffs and interactive prompts, with color
// support and quiet mode.
package presenter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Presenter defines the interface for consistent CLI output
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
	Section(title string)
	Markdown(text string)
	Diff(diff string)
	Reply(name, text string)
	Prompt(question string, options ...string) string
	ReadLine(prompt string) (string, error)
	Separator()
	SetQuiet(quiet bool)
	IsQuiet() bool
}

// TerminalPresenter implements Presenter for terminal output
type TerminalPresenter struct {
	input       *bufio.Reader
	output      io.Writer
	errorOutput io.Writer
	colorMode   ColorMode
	quiet       bool
}

// ColorMode represents different color output modes
type ColorMode int

const (
	// ColorAuto automatically detects whether to use colored output based on terminal capabilities
	ColorAuto ColorMode = iota
	// ColorAlways forces colored output regardless of terminal capabilities
	ColorAlways
	// ColorNever disables colored output regardless of terminal capabilities
	ColorNever
)

// New creates a new TerminalPresenter over the standard streams
func New() *TerminalPresenter {
	return NewWithOptions(os.Stdin, os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions creates a TerminalPresenter with custom streams
func NewWithOptions(input io.Reader, output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	presenter := &TerminalPresenter{
		input:       bufio.NewReader(input),
		output:      output,
		errorOutput: errorOutput,
		colorMode:   colorMode,
	}

	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	case ColorAuto:
	}

	return presenter
}

// detectColorMode honours NO_COLOR and SKILLFORGE_COLOR
func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}

	switch os.Getenv("SKILLFORGE_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error displays an error message to stderr
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}

	errorColor := color.New(color.FgRed, color.Bold)
	if context != "" {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
	} else {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
	}
}

// Success displays a success message
func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgGreen, color.Bold).Fprintf(p.output, "✓ %s\n", message)
}

// Warning displays a warning message
func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgYellow, color.Bold).Fprintf(p.output, "⚠ %s\n", message)
}

// Info displays an informational message
func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.output, "%s\n", message)
}

// Section displays a section header
func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}

	headerColor := color.New(color.Bold)
	headerColor.Fprintf(p.output, "%s\n", title)
	headerColor.Fprintf(p.output, "%s\n", strings.Repeat("-", len([]rune(title))))
}

// Markdown prints a Markdown view, emphasising its headings
func (p *TerminalPresenter) Markdown(text string) {
	headingColor := color.New(color.FgCyan, color.Bold)
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if strings.HasPrefix(line, "#") {
			headingColor.Fprintf(p.output, "%s\n", line)
			continue
		}
		fmt.Fprintf(p.output, "%s\n", line)
	}
}

// Diff prints a unified diff with added and removed lines colored
func (p *TerminalPresenter) Diff(diff string) {
	if strings.TrimSpace(diff) == "" {
		p.Info("No changes.")
		return
	}

	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	hunk := color.New(color.FgCyan)
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			color.New(color.Bold).Fprintf(p.output, "%s\n", line)
		case strings.HasPrefix(line, "@@"):
			hunk.Fprintf(p.output, "%s\n", line)
		case strings.HasPrefix(line, "+"):
			added.Fprintf(p.output, "%s\n", line)
		case strings.HasPrefix(line, "-"):
			removed.Fprintf(p.output, "%s\n", line)
		default:
			fmt.Fprintf(p.output, "%s\n", line)
		}
	}
}

// Reply prints a message produced by the named skill
func (p *TerminalPresenter) Reply(name, text string) {
	color.New(color.FgMagenta, color.Bold).Fprintf(p.output, "%s> ", name)
	fmt.Fprintf(p.output, "%s\n", text)
}

// Prompt displays a question and reads one line of input
func (p *TerminalPresenter) Prompt(question string, options ...string) string {
	promptColor := color.New(color.FgCyan)
	if len(options) > 0 {
		promptColor.Fprintf(p.output, "%s [%s]: ", question, strings.Join(options, "/"))
	} else {
		promptColor.Fprintf(p.output, "%s: ", question)
	}

	response, err := p.input.ReadString('\n')
	if err != nil && response == "" {
		return ""
	}
	return strings.TrimSpace(response)
}

// ReadLine reads one line after printing prompt. It returns io.EOF once the
// input is exhausted.
func (p *TerminalPresenter) ReadLine(prompt string) (string, error) {
	color.New(color.FgCyan, color.Bold).Fprint(p.output, prompt)

	line, err := p.input.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Separator displays a visual separator
func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}
	color.New(color.Faint).Fprintf(p.output, "%s\n", strings.Repeat("-", 60))
}

// SetQuiet enables or disables quiet mode
func (p *TerminalPresenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// IsQuiet returns whether quiet mode is enabled
func (p *TerminalPresenter) IsQuiet() bool {
	return p.quiet
}

var defaultPresenter = New()

// Default returns the presenter behind the package level helpers
func Default() *TerminalPresenter {
	return defaultPresenter
}

// Error displays an error message using the default presenter instance.
func Error(err error, context string) {
	defaultPresenter.Error(err, context)
}

// Success displays a success message using the default presenter instance.
func Success(message string) {
	defaultPresenter.Success(message)
}

// Warning displays a warning message using the default presenter instance.
func Warning(message string) {
	defaultPresenter.Warning(message)
}

// Info displays an informational message using the default presenter instance.
func Info(message string) {
	defaultPresenter.Info(message)
}

// Section displays a section header using the default presenter instance.
func Section(title string) {
	defaultPresenter.Section(title)
}

// Markdown prints a Markdown view using the default presenter instance.
func Markdown(text string) {
	defaultPresenter.Markdown(text)
}

// Diff prints a unified diff using the default presenter instance.
func Diff(diff string) {
	defaultPresenter.Diff(diff)
}

// Prompt reads user input using the default presenter instance.
func Prompt(question string, options ...string) string {
	return defaultPresenter.Prompt(question, options...)
}

// Separator displays a visual separator using the default presenter instance.
func Separator() {
	defaultPresenter.Separator()
}

// SetQuiet enables or disables quiet mode for the default presenter instance.
func SetQuiet(quiet bool) {
	defaultPresenter.SetQuiet(quiet)
}

// IsQuiet returns whether quiet mode is enabled for the default presenter instance.
func IsQuiet() bool {
	return defaultPresenter.IsQuiet()
}
