package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sthenolabs/stheno/logging/colors"
)

// GlobalLogger describes a Logger that is disabled by default and is configured by the CLI at
// startup. Each module/package should create its own sub-logger so log lines remain
// attributable to the subsystem that emitted them.
var GlobalLogger = NewLogger(zerolog.Disabled, false)

// Logger describes a logging object that can emit structured logs to any number of arbitrary
// channels and specialized, colorized output to console.
type Logger struct {
	// level describes the log level.
	level zerolog.Level

	// multiLogger describes a logger used to output structured logs to any arbitrary
	// channel(s).
	multiLogger zerolog.Logger

	// consoleLogger describes a logger used to output unstructured, colorized output to
	// console.
	consoleLogger zerolog.Logger

	// writers describes the list of io.Writer objects where structured log output goes.
	writers []io.Writer
}

// StructuredLogInfo describes a key-value mapping that can be attached to a log line as
// structured data.
type StructuredLogInfo map[string]any

// NewLogger will create a new Logger object with a specific log level. The Logger can output
// to console, if enabled, and to any number of additional writers added later.
func NewLogger(level zerolog.Level, consoleEnabled bool, writers ...io.Writer) *Logger {
	baseMultiLogger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	baseConsoleLogger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	if len(writers) > 0 {
		baseMultiLogger = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	}
	if consoleEnabled {
		consoleWriter := setupDefaultFormatting(zerolog.ConsoleWriter{Out: os.Stdout}, level)
		baseConsoleLogger = zerolog.New(consoleWriter).Level(level)
	}

	return &Logger{
		level:         level,
		multiLogger:   baseMultiLogger,
		consoleLogger: baseConsoleLogger,
		writers:       writers,
	}
}

// NewSubLogger will create a new Logger with unique context in the form of a key-value pair.
// Each package is expected to create its own sub-logger so logs stay grep-able by subsystem.
func (l *Logger) NewSubLogger(key string, value string) *Logger {
	subMultiLogger := l.multiLogger.With().Str(key, value).Logger()
	subConsoleLogger := l.consoleLogger.With().Str(key, value).Logger()
	return &Logger{
		level:         l.level,
		multiLogger:   subMultiLogger,
		consoleLogger: subConsoleLogger,
		writers:       l.writers,
	}
}

// AddWriter will add a writer to the list of channels where structured log output is sent.
func (l *Logger) AddWriter(writer io.Writer) {
	for _, w := range l.writers {
		if writer == w {
			return
		}
	}
	l.writers = append(l.writers, writer)
	l.multiLogger = zerolog.New(zerolog.MultiLevelWriter(l.writers...)).Level(l.level).With().Timestamp().Logger()
}

// Level will get the log level of the Logger.
func (l *Logger) Level() zerolog.Level {
	return l.level
}

// SetLevel will update the log level of the Logger.
func (l *Logger) SetLevel(level zerolog.Level) {
	l.level = level
	l.multiLogger = l.multiLogger.Level(level)
	l.consoleLogger = l.consoleLogger.Level(level)
}

// EnableConsoleLogging enables colorized console output at the Logger's current level.
func (l *Logger) EnableConsoleLogging() {
	consoleWriter := setupDefaultFormatting(zerolog.ConsoleWriter{Out: os.Stdout}, l.level)
	l.consoleLogger = zerolog.New(consoleWriter).Level(l.level)
}

// Trace is a wrapper function that will log a trace event.
func (l *Logger) Trace(args ...any) {
	l.emit(l.consoleLogger.Trace(), l.multiLogger.Trace(), args...)
}

// Debug is a wrapper function that will log a debug event.
func (l *Logger) Debug(args ...any) {
	l.emit(l.consoleLogger.Debug(), l.multiLogger.Debug(), args...)
}

// Info is a wrapper function that will log an info event.
func (l *Logger) Info(args ...any) {
	l.emit(l.consoleLogger.Info(), l.multiLogger.Info(), args...)
}

// Warn is a wrapper function that will log a warning event.
func (l *Logger) Warn(args ...any) {
	l.emit(l.consoleLogger.Warn(), l.multiLogger.Warn(), args...)
}

// Error is a wrapper function that will log an error event.
func (l *Logger) Error(args ...any) {
	l.emit(l.consoleLogger.Error(), l.multiLogger.Error(), args...)
}

// Panic is a wrapper function that will log a panic event.
func (l *Logger) Panic(args ...any) {
	l.emit(l.consoleLogger.Panic(), l.multiLogger.Panic(), args...)
}

// emit builds the console and structured messages out of the variadic argument list and sends
// them to both underlying loggers. Arguments may include message fragments of any type, at
// most one error, at most one StructuredLogInfo, and colors.ColorFunc values which change the
// color context for the console rendering of subsequent fragments.
func (l *Logger) emit(consoleLog *zerolog.Event, multiLog *zerolog.Event, args ...any) {
	colorCtx := colors.Reset
	consoleOutput := make([]string, 0, len(args))
	fileOutput := make([]string, 0, len(args))
	var info StructuredLogInfo
	var err error

	for _, arg := range args {
		switch t := arg.(type) {
		case colors.ColorFunc:
			colorCtx = t
		case StructuredLogInfo:
			info = t
		case error:
			err = t
		default:
			consoleOutput = append(consoleOutput, colorCtx(t))
			fileOutput = append(fileOutput, fmt.Sprintf("%v", t))
		}
	}

	consoleLog.Err(err)
	multiLog.Err(err)
	if l.level <= zerolog.DebugLevel {
		consoleLog.Stack()
		multiLog.Stack()
	}
	if info != nil {
		consoleLog.Any("info", info)
		multiLog.Any("info", info)
	}

	// Defer the structured message so a panic event still reaches every channel.
	defer multiLog.Msg(strings.Join(fileOutput, ""))
	consoleLog.Msg(strings.Join(consoleOutput, ""))
}

// setupDefaultFormatting will update the console logger's formatting to the stheno standard.
func setupDefaultFormatting(writer zerolog.ConsoleWriter, level zerolog.Level) zerolog.ConsoleWriter {
	// Console output carries no timestamp; log files keep theirs.
	writer.FormatTimestamp = func(i interface{}) string {
		return ""
	}

	writer.FormatLevel = func(i any) string {
		parsedLevel, err := zerolog.ParseLevel(i.(string))
		if err != nil {
			panic(fmt.Sprintf("unable to parse the log level: %v", err))
		}
		switch parsedLevel {
		case zerolog.TraceLevel:
			return colors.CyanBold(zerolog.LevelTraceValue)
		case zerolog.DebugLevel:
			return colors.BlueBold(zerolog.LevelDebugValue)
		case zerolog.InfoLevel:
			return colors.GreenBold(colors.LEFT_ARROW)
		case zerolog.WarnLevel:
			return colors.YellowBold(zerolog.LevelWarnValue)
		case zerolog.ErrorLevel:
			return colors.RedBold(zerolog.LevelErrorValue)
		case zerolog.FatalLevel:
			return colors.RedBold(zerolog.LevelFatalValue)
		case zerolog.PanicLevel:
			return colors.RedBold(zerolog.LevelPanicValue)
		default:
			return i.(string)
		}
	}

	// Above debug level the module key is noise on console.
	if level > zerolog.DebugLevel {
		writer.FieldsExclude = []string{"module"}
	}

	return writer
}
