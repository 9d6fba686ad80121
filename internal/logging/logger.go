// Package logging builds the process logger and renders severity-tagged lines.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Level is the severity of a line written through Log.
type Level string

// Supported levels. Anything else is treated as LevelInfo.
const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
)

// DefaultTimeFormat is used by the console writer when Options.TimeFormat is empty.
const DefaultTimeFormat = "15:04:05"

// Options configures New.
type Options struct {
	Out        io.Writer // defaults to os.Stdout
	JSON       bool
	NoColor    bool
	TimeFormat string
}

// New returns a timestamped logger. Console output tags every line with
// "[<level>]", colored by severity when writing to a terminal.
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	if opts.JSON {
		return zerolog.New(out).With().Timestamp().Logger()
	}

	noColor := opts.NoColor || !isTerminal(out)
	timeFormat := opts.TimeFormat
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}

	output := zerolog.ConsoleWriter{Out: out, NoColor: noColor, TimeFormat: timeFormat}
	output.FormatLevel = levelFormatter(noColor)
	output.FormatMessage = func(i interface{}) string {
		s, ok := i.(string)
		if !ok {
			return ""
		}
		return strings.TrimSuffix(s, "\n")
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

// Format renders message as "[<level>] <message>" with one trailing newline removed.
func Format(message string, level Level) string {
	return fmt.Sprintf("[%s] %s", normalize(level), strings.TrimSuffix(message, "\n"))
}

// Log writes message at level. It never fails; write errors are swallowed by zerolog.
func Log(logger zerolog.Logger, message string, level Level) {
	message = strings.TrimSuffix(message, "\n")

	switch normalize(level) {
	case LevelError:
		logger.Error().Msg(message)
	case LevelWarn:
		logger.Warn().Msg(message)
	default:
		logger.Info().Msg(message)
	}
}

func normalize(level Level) Level {
	switch level {
	case LevelError, LevelWarn:
		return level
	default:
		return LevelInfo
	}
}

func levelFormatter(noColor bool) zerolog.Formatter {
	return func(i interface{}) string {
		name, _ := i.(string)
		tag := "[" + tagFor(name) + "]"
		if noColor {
			return tag
		}

		c := levelColor(name)
		c.EnableColor()
		return c.Sprint(tag)
	}
}

// tagFor maps zerolog level names onto the tags written to the console.
func tagFor(name string) string {
	switch name {
	case zerolog.LevelFatalValue, zerolog.LevelPanicValue, zerolog.LevelErrorValue:
		return string(LevelError)
	case zerolog.LevelWarnValue:
		return string(LevelWarn)
	case zerolog.LevelDebugValue, zerolog.LevelTraceValue:
		return name
	default:
		return string(LevelInfo)
	}
}

func levelColor(name string) *color.Color {
	switch tagFor(name) {
	case string(LevelError):
		return color.New(color.FgRed, color.Bold)
	case string(LevelWarn):
		return color.New(color.FgYellow)
	case string(LevelInfo):
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgHiBlack)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
