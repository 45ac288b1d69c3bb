package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents log levels
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name onto a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger writes one tab-separated record per line.
type Logger struct {
	Level   Level
	Writer  io.Writer
	Service string

	mu sync.Mutex
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// Init points the global logger at a file. The terminal belongs to the chat
// UI, so records go to stderr only when the file cannot be opened.
func Init(logPath string, level Level, serviceName string) error {
	logDir := filepath.Dir(logPath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to create log directory %s: %v\n", logDir, err)
			setGlobal(&Logger{Level: level, Writer: os.Stderr, Service: serviceName})
			return nil
		}
	}

	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to open log file %s: %v\n", logPath, err)
		setGlobal(&Logger{Level: level, Writer: os.Stderr, Service: serviceName})
		return nil
	}

	setGlobal(&Logger{Level: level, Writer: file, Service: serviceName})
	return nil
}

// SetOutput installs a logger writing to w. Passing nil disables logging.
func SetOutput(w io.Writer, level Level, serviceName string) {
	if w == nil {
		setGlobal(nil)
		return
	}
	setGlobal(&Logger{Level: level, Writer: w, Service: serviceName})
}

func setGlobal(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

func current() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

func (l *Logger) log(level Level, scope string, msg string, ctx map[string]interface{}) {
	if level < l.Level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	_, file, line, ok := runtime.Caller(2)
	caller := "unknown:0"
	if ok {
		caller = fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
	}

	// Format: [Timestamp] [LEVEL] [Scope] [File:Line] Message JSON
	fields := make(map[string]interface{}, len(ctx)+1)
	for k, v := range ctx {
		if err, isErr := v.(error); isErr && err != nil {
			v = err.Error()
		}
		fields[k] = v
	}
	if l.Service != "" {
		fields["service"] = l.Service
	}

	lineOut := fmt.Sprintf("[%s]\t[%s]\t[%s]\t[%s]\t%s", timestamp, level.String(), scope, caller, msg)
	if len(fields) > 0 {
		data, err := json.Marshal(fields)
		if err != nil {
			data = []byte(fmt.Sprintf("%q", fmt.Sprint(fields)))
		}
		lineOut += "\t" + string(data)
	}

	l.mu.Lock()
	fmt.Fprintln(l.Writer, lineOut)
	l.mu.Unlock()
}

// Global functions
func Info(scope string, msg string, args ...map[string]interface{}) {
	if l := current(); l != nil {
		l.log(INFO, scope, msg, getCtx(args))
	}
}

func Error(scope string, msg string, args ...map[string]interface{}) {
	if l := current(); l != nil {
		l.log(ERROR, scope, msg, getCtx(args))
	}
}

func Debug(scope string, msg string, args ...map[string]interface{}) {
	if l := current(); l != nil {
		l.log(DEBUG, scope, msg, getCtx(args))
	}
}

func Warn(scope string, msg string, args ...map[string]interface{}) {
	if l := current(); l != nil {
		l.log(WARN, scope, msg, getCtx(args))
	}
}

func getCtx(args []map[string]interface{}) map[string]interface{} {
	if len(args) > 0 {
		return args[0]
	}
	return nil
}
