// Package diag defines the diagnostic type shared by every pipeline stage
// (lexer, parser, resolver, type checker, CFG builder) and the source
// rendering used to print it at the CLI boundary.
package diag

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/kaori-lang/kaori/pkg/token"
)

// Kind classifies a diagnostic per the taxonomy in §7 of the specification.
type Kind int

const (
	Lex Kind = iota
	Parse
	Name
	Type
	CFG
	RuntimeFatal
)

func (k Kind) String() string {
	switch k {
	case Lex:
		return "lex error"
	case Parse:
		return "parse error"
	case Name:
		return "name error"
	case Type:
		return "type error"
	case CFG:
		return "cfg error"
	case RuntimeFatal:
		return "runtime fatal"
	default:
		return "error"
	}
}

// Error is the diagnostic type raised by the front end and the CFG builder;
// New and NewWrap attach a stack with errors.WithStack. Render prints only
// Kind, Span and Msg, and nothing in the repository prints the stack.
// pkg/bytecode's emitter returns plain errors rather than *Error values.
type Error struct {
	Kind Kind
	Span token.Span
	Msg  string
	Err  error // optional: a package-level sentinel this diagnostic wraps
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Span, e.Msg)
}

// Unwrap exposes Err so callers can match a specific diagnostic with
// errors.Is/errors.As against the sentinel it was raised from, without
// losing the caret-renderable Kind/Span/Msg at the top level.
func (e *Error) Unwrap() error { return e.Err }

// New constructs a diagnostic and immediately attaches a stack trace via
// errors.WithStack so internal callers can recover it with errors.As while
// external callers only ever see Error's message.
func New(kind Kind, span token.Span, format string, args ...interface{}) error {
	return errors.WithStack(&Error{Kind: kind, Span: span, Msg: fmt.Sprintf(format, args...)})
}

// NewWrap is New, but records cause so errors.Is(err, cause) succeeds
// against the rendered diagnostic.
func NewWrap(kind Kind, span token.Span, cause error, format string, args ...interface{}) error {
	return errors.WithStack(&Error{Kind: kind, Span: span, Msg: fmt.Sprintf(format, args...), Err: cause})
}

// AsDiag extracts the *Error embedded in err, if any.
func AsDiag(err error) (*Error, bool) {
	var d *Error
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// Render prints a caret-anchored rendering of err against source to w. When
// colour is true (stderr is a terminal, the CLI's call), the message and
// caret are coloured via fatih/color; otherwise the output is plain text,
// suitable for piping or for golden-file tests.
func Render(w *bufio.Writer, filename, source string, err error, colour bool) {
	d, ok := AsDiag(err)
	if !ok {
		fmt.Fprintf(w, "%s: %s\n", filename, err)
		w.Flush()
		return
	}
	red := color.New(color.FgRed, color.Bold)
	bold := color.New(color.Bold)
	if !colour {
		red.DisableColor()
		bold.DisableColor()
	}
	bold.Fprintf(w, "%s:%s: ", filename, d.Span)
	red.Fprintf(w, "%s: ", d.Kind)
	fmt.Fprintf(w, "%s\n", d.Msg)

	lines := strings.Split(source, "\n")
	if d.Span.Line-1 < 0 || d.Span.Line-1 >= len(lines) {
		w.Flush()
		return
	}
	line := lines[d.Span.Line-1]
	fmt.Fprintf(w, "  %s\n", line)
	col := d.Span.Column
	if col < 1 {
		col = 1
	}
	fmt.Fprintf(w, "  %s", strings.Repeat(" ", col-1))
	red.Fprintf(w, "^\n")
	w.Flush()
}
