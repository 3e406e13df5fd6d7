package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/sawpanic/tradeguard/internal/errs"
)

// Formats accepted by Setup
const (
	FormatAuto    = "auto"    // Console on a TTY, JSON otherwise
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config selects level and output format
type Config struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"auto" validate:"oneof=auto console json"`
}

// Setup configures the global zerolog logger on stderr
func Setup(level, format string) error {
	return SetupWriter(os.Stderr, level, format, term.IsTerminal(int(os.Stderr.Fd())))
}

// SetupWriter configures the global logger on w; isTTY decides the auto format
func SetupWriter(w io.Writer, level, format string, isTTY bool) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return errs.Configf("log.level", "unknown level %q", level)
	}

	var out io.Writer
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatAuto:
		out = w
		if isTTY {
			out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
		}
	case FormatConsole:
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: !isTTY}
	case FormatJSON:
		out = w
	default:
		return errs.Configf("log.format", "unknown format %q (%s|%s|%s)", format, FormatAuto, FormatConsole, FormatJSON)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

// MustSetup is Setup for main packages that cannot continue without logging
func MustSetup(level, format string) {
	if err := Setup(level, format); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
}
