// Package logging configures the process-wide logrus logger: colored console
// output plus an optional rotating file.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/motionfleet/fleetzones/config"
	"github.com/pkg/errors"
	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

func ParseLevel(s string) log.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return log.DebugLevel
	case "INFO":
		return log.InfoLevel
	case "WARN", "WARNING":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Configure sets up the standard logger. The returned closer flushes the log
// file, if one was opened.
func Configure(cfg config.LoggingConfig, console io.Writer) (io.Closer, error) {
	log.SetLevel(ParseLevel(cfg.Level))
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: false})
	if console == nil {
		console = os.Stdout
	}
	log.SetOutput(console)

	if cfg.FilePath == "" {
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, errors.Wrap(err, "create log dir")
	}

	maxAge := cfg.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 30
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    100,
		MaxBackups: 30,
		MaxAge:     maxAge,
		Compress:   true,
	}

	fileFmt := &log.TextFormatter{DisableColors: true, FullTimestamp: true}
	log.AddHook(lfshook.NewHook(lfshook.WriterMap{
		log.PanicLevel: lj,
		log.FatalLevel: lj,
		log.ErrorLevel: lj,
		log.WarnLevel:  lj,
		log.InfoLevel:  lj,
		log.DebugLevel: lj,
		log.TraceLevel: lj,
	}, fileFmt))

	return lj, nil
}
