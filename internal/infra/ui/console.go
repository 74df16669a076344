// Where: internal/infra/ui/console.go
// What: Human-facing console output.
// Why: Pipeline progress, summaries, and warnings share one format with optional emoji.
package ui

import (
	"fmt"
	"io"
	"strings"
)

// KeyValue is a row rendered inside a block.
type KeyValue struct {
	Key   string
	Value any
}

// UserInterface is the output surface used by the pipeline and commands.
type UserInterface interface {
	Info(msg string)
	Warn(msg string)
	Success(msg string)
	Step(index, total int, name string)
	Block(emoji, title string, rows []KeyValue)
}

// Console writes formatted output to Out.
type Console struct {
	Out          io.Writer
	EmojiEnabled bool
}

// New returns a Console with emoji enabled.
func New(out io.Writer) *Console {
	return &Console{Out: out, EmojiEnabled: true}
}

// NewWithEmoji returns a Console with explicit emoji settings.
func NewWithEmoji(out io.Writer, enabled bool) *Console {
	return &Console{Out: out, EmojiEnabled: enabled}
}

// Header prints a title line, e.g. "🚀 Deploying aaq to testing".
func (c *Console) Header(emoji, title string) {
	fmt.Fprintf(c.Out, "%s%s\n", c.emojiPrefix(emoji), title)
}

// BlockStart prints a blank line followed by a header.
func (c *Console) BlockStart(emoji, title string) {
	fmt.Fprintln(c.Out)
	c.Header(emoji, title)
}

// BlockEnd closes a block with a blank line.
func (c *Console) BlockEnd() {
	fmt.Fprintln(c.Out)
}

// Block prints a header and one aligned row per entry.
func (c *Console) Block(emoji, title string, rows []KeyValue) {
	c.BlockStart(emoji, title)
	for _, row := range rows {
		c.Item(row.Key, row.Value)
	}
	c.BlockEnd()
}

// Item prints an indented key/value row.
func (c *Console) Item(key string, value any) {
	fmt.Fprintf(c.Out, "   %-16s %v\n", key+":", value)
}

// ItemPlain prints an indented line.
func (c *Console) ItemPlain(msg string) {
	fmt.Fprintf(c.Out, "   %s\n", msg)
}

// Step prints pipeline progress, e.g. "▶ [3/9] env-files".
func (c *Console) Step(index, total int, name string) {
	prefix := c.emojiPrefix("▶")
	if prefix == "" {
		prefix = "==> "
	}
	fmt.Fprintf(c.Out, "%s[%d/%d] %s\n", prefix, index, total, name)
}

func (c *Console) Success(msg string) {
	c.prefixed("✅", "[ok] ", msg)
}

func (c *Console) Info(msg string) {
	fmt.Fprintln(c.Out, msg)
}

func (c *Console) Warn(msg string) {
	c.prefixed("⚠️", "[warn] ", msg)
}

// Error prints a failure line.
func (c *Console) Error(msg string) {
	c.prefixed("❌", "[error] ", msg)
}

func (c *Console) prefixed(emoji, fallback, msg string) {
	prefix := c.emojiPrefix(emoji)
	if prefix == "" {
		prefix = fallback
	}
	fmt.Fprintf(c.Out, "%s%s\n", prefix, msg)
}

func (c *Console) emojiPrefix(emoji string) string {
	if !c.EmojiEnabled || strings.TrimSpace(emoji) == "" {
		return ""
	}
	return emoji + " "
}
