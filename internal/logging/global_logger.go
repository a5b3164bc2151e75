package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/router-for-me/authflow/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	setupOnce  sync.Once
	outputMu   sync.Mutex
	fileWriter *lumberjack.Logger
)

// LogFormatter renders entries as "[time] [level] [file:line] message k=v".
type LogFormatter struct{}

// Format implements logrus.Formatter.
func (f *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}
	fmt.Fprintf(b, "[%s] [%s]", entry.Time.Format("2006-01-02 15:04:05"), level)
	if entry.HasCaller() {
		fmt.Fprintf(b, " [%s]", formatSource(entry.Caller.File, entry.Caller.Line))
	}
	b.WriteString(" ")
	b.WriteString(strings.TrimRight(entry.Message, "\n"))
	for k, v := range entry.Data {
		fmt.Fprintf(b, " %s=%v", k, v)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// SetupBaseLogger installs the shared formatter and the ring buffer hook.
// It is safe to call more than once.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&LogFormatter{})
		log.AddHook(GlobalBuffer)
	})
}

// SetLogLevel maps a textual level onto logrus. Unknown values select info.
func SetLogLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "verbose":
		log.SetLevel(log.DebugLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "quiet", "silent":
		log.SetLevel(log.FatalLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// ConfigureLogOutput applies the level and destination from cfg. With LoggingToFile set,
// logs go to a size-rotated authflow.log under LogDir.
func ConfigureLogOutput(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	SetLogLevel(cfg.LogLevel)

	outputMu.Lock()
	defer outputMu.Unlock()

	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
	if !cfg.LoggingToFile {
		log.SetOutput(os.Stdout)
		return nil
	}

	dir := cfg.LogDir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	fileWriter = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "authflow.log"),
		MaxSize:    cfg.LogsMaxSizeMB,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
	log.SetOutput(fileWriter)
	return nil
}

// SetOutput redirects log output, closing any rotating file writer. The TUI uses it to
// keep log lines off the terminal it draws on.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
	log.SetOutput(w)
}
