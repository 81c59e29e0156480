package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TimeFormat is the console timestamp layout.
const TimeFormat = "2006-01-02 15:04:05"

var initMu sync.Mutex

// Init configures the process-wide logger: a leveled, timestamped console
// stream on stderr. Unknown levels fall back to info.
func Init(level string) {
	noColor := !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())
	setup(os.Stderr, level, noColor)
}

// SetOutput redirects the process-wide logger to w without colours.
func SetOutput(w io.Writer, level string) {
	setup(w, level, true)
}

func setup(w io.Writer, level string, noColor bool) {
	initMu.Lock()
	defer initMu.Unlock()

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		if level != "" {
			fmt.Fprintf(os.Stderr, "Unknown log level %q, defaulting to info\n", level)
		}
		lvl = zerolog.InfoLevel
	}

	log.Logger = New(w, noColor).Level(lvl)
}

// New returns a console logger writing to w. Writes are serialized so that
// several loops can share one sink.
func New(w io.Writer, noColor bool) zerolog.Logger {
	console := zerolog.ConsoleWriter{
		Out:        zerolog.SyncWriter(w),
		TimeFormat: TimeFormat,
		NoColor:    noColor,
	}
	return zerolog.New(console).With().Timestamp().Logger()
}

// Component returns a child of the process-wide logger tagged with name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

// Logf logs a formatted info message.
func Logf(format string, v ...interface{}) {
	log.Info().Msgf(format, v...)
}

// Log logs an info message.
func Log(v ...interface{}) {
	log.Info().Msg(fmt.Sprint(v...))
}

// Warnf logs a formatted warning.
func Warnf(format string, v ...interface{}) {
	log.Warn().Msgf(format, v...)
}

// Fatalf logs a fatal error and exits.
func Fatalf(format string, v ...interface{}) {
	log.Fatal().Msgf(format, v...)
}
