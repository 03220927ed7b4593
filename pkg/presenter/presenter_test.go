package presenter

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresenter(input string) (*TerminalPresenter, *bytes.Buffer, *bytes.Buffer) {
	var output, errorOutput bytes.Buffer
	return NewWithOptions(strings.NewReader(input), &output, &errorOutput, ColorNever), &output, &errorOutput
}

func TestNew(t *testing.T) {
	presenter := New()
	assert.NotNil(t, presenter)
	assert.Equal(t, os.Stdout, presenter.output)
	assert.Equal(t, os.Stderr, presenter.errorOutput)
	assert.False(t, presenter.quiet)
}

func TestDetectColorMode(t *testing.T) {
	tests := []struct {
		name     string
		noColor  string
		color    string
		expected ColorMode
	}{
		{"NO_COLOR set", "1", "", ColorNever},
		{"SKILLFORGE_COLOR always", "", "always", ColorAlways},
		{"SKILLFORGE_COLOR force", "", "force", ColorAlways},
		{"SKILLFORGE_COLOR never", "", "never", ColorNever},
		{"SKILLFORGE_COLOR off", "", "off", ColorNever},
		{"SKILLFORGE_COLOR auto", "", "auto", ColorAuto},
		{"default", "", "", ColorAuto},
		{"invalid", "", "invalid", ColorAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("SKILLFORGE_COLOR", tt.color)
			if tt.noColor == "" {
				os.Unsetenv("NO_COLOR")
			}
			assert.Equal(t, tt.expected, detectColorMode())
		})
	}
}

func TestError(t *testing.T) {
	presenter, _, errorOutput := newTestPresenter("")

	err := errors.New("test error")
	presenter.Error(err, "test context")
	assert.Contains(t, errorOutput.String(), "[ERROR] test context: test error")

	errorOutput.Reset()
	presenter.Error(err, "")
	assert.Equal(t, "[ERROR] test error\n", errorOutput.String())

	errorOutput.Reset()
	presenter.Error(nil, "context")
	assert.Empty(t, errorOutput.String())
}

func TestStatusLines(t *testing.T) {
	presenter, output, _ := newTestPresenter("")

	presenter.Success("saved")
	presenter.Warning("overwriting")
	presenter.Info("plain")

	result := output.String()
	assert.Contains(t, result, "✓ saved")
	assert.Contains(t, result, "⚠ overwriting")
	assert.Contains(t, result, "plain\n")
}

func TestQuietMode(t *testing.T) {
	presenter, output, _ := newTestPresenter("")
	presenter.SetQuiet(true)
	assert.True(t, presenter.IsQuiet())

	presenter.Success("x")
	presenter.Warning("x")
	presenter.Info("x")
	presenter.Section("x")
	presenter.Separator()
	assert.Empty(t, output.String())

	presenter.SetQuiet(false)
	assert.False(t, presenter.IsQuiet())
}

func TestSection(t *testing.T) {
	presenter, output, _ := newTestPresenter("")

	presenter.Section("步骤 Steps")

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "步骤 Steps", lines[0])
	assert.Equal(t, strings.Repeat("-", 8), lines[1])
}

func TestMarkdown(t *testing.T) {
	presenter, output, _ := newTestPresenter("")

	presenter.Markdown("# Title\n\nbody\n")
	assert.Equal(t, "# Title\n\nbody\n", output.String())
}

func TestDiff(t *testing.T) {
	presenter, output, _ := newTestPresenter("")

	presenter.Diff("")
	assert.Equal(t, "No changes.\n", output.String())

	output.Reset()
	presenter.Diff("--- previous\n+++ current\n@@ -1 +1 @@\n-# v1\n+# v2\n")
	assert.Equal(t, "--- previous\n+++ current\n@@ -1 +1 @@\n-# v1\n+# v2\n", output.String())
}

func TestReply(t *testing.T) {
	presenter, output, _ := newTestPresenter("")

	presenter.Reply("Weekly report", "done")
	assert.Equal(t, "Weekly report> done\n", output.String())
}

func TestPrompt(t *testing.T) {
	presenter, output, _ := newTestPresenter("  yes \nsecond\n")

	assert.Equal(t, "yes", presenter.Prompt("Continue", "yes", "no"))
	assert.Contains(t, output.String(), "Continue [yes/no]: ")
	assert.Equal(t, "second", presenter.Prompt("Name"))
	assert.Equal(t, "", presenter.Prompt("Again"))
}

func TestReadLine(t *testing.T) {
	presenter, output, _ := newTestPresenter("revise more detail\nlast line without newline")

	line, err := presenter.ReadLine("> ")
	require.NoError(t, err)
	assert.Equal(t, "revise more detail", line)
	assert.Contains(t, output.String(), "> ")

	line, err = presenter.ReadLine("> ")
	require.NoError(t, err)
	assert.Equal(t, "last line without newline", line)

	_, err = presenter.ReadLine("> ")
	assert.Equal(t, io.EOF, err)
}

func TestColorModeConfiguration(t *testing.T) {
	oldNoColor := color.NoColor
	defer func() { color.NoColor = oldNoColor }()

	presenter := NewWithOptions(strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}, ColorNever)
	assert.Equal(t, ColorNever, presenter.colorMode)
	assert.True(t, color.NoColor)

	presenter = NewWithOptions(strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}, ColorAlways)
	assert.Equal(t, ColorAlways, presenter.colorMode)
	assert.False(t, color.NoColor)
}

func TestGlobalFunctions(t *testing.T) {
	originalPresenter := defaultPresenter
	defer func() { defaultPresenter = originalPresenter }()

	testPresenter, output, errorOutput := newTestPresenter("answer\n")
	defaultPresenter = testPresenter
	assert.Same(t, testPresenter, Default())

	Error(errors.New("test error"), "error context")
	assert.Contains(t, errorOutput.String(), "[ERROR] error context: test error")

	Success("success message")
	Warning("warning message")
	Info("info message")
	Section("Test Section")
	Markdown("## heading")
	Diff("+added")
	Separator()
	result := output.String()
	for _, want := range []string{"✓ success message", "⚠ warning message", "info message", "Test Section", "## heading", "+added", strings.Repeat("-", 60)} {
		assert.Contains(t, result, want)
	}

	assert.Equal(t, "answer", Prompt("Question"))

	SetQuiet(true)
	assert.True(t, IsQuiet())
	output.Reset()
	Info("should not appear")
	assert.Empty(t, output.String())
	SetQuiet(false)
}
