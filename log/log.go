package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelError = "ERROR"
)

var (
	logFile   *WriteDaily
	errorsLog *WriteDaily
	eventsLog *WriteDaily

	// interactive sink, set to io.Discard to silence
	Console io.Writer = os.Stderr

	// if true, Verbosef() will log messages
	Verbose bool

	onLog func(s string)
)

type Config struct {
	// directory where log files are stored
	// regular logs go to Dir, errors and events to their own subdirectories
	// if empty, we only log to Console
	Dir string
	// prefix of daily log file names e.g. "regstore" => "regstore-2026-10-19.log"
	Name    string
	Verbose bool
	// if set, events are also sent to http://<RemoteServer>/api/v1/event
	RemoteServer string
	ApiKey       string
	// called for every logged line
	// allows sending logs to other places
	OnLog func(s string)
}

// Init initializes the logging system
func Init(config *Config) {
	Verbose = config.Verbose
	onLog = config.OnLog
	startRemote(config.RemoteServer, config.ApiKey)
	dir := config.Dir
	if dir == "" {
		return
	}
	name := config.Name
	if name == "" {
		name = "regstore"
	}
	logFile = NewWriteDaily(dir, name)
	errorsLog = NewWriteDaily(filepath.Join(dir, "errors"), name)
	// this doesn't create log files so if app doesn't
	// log events, it's a no-op
	eventsLog = NewWriteDaily(filepath.Join(dir, "events"), name)
}

// CloseWriteDaily closes the WriteDaily and sets its pointer to nil
// it's safe to call with nil pointer
func CloseWriteDaily(wd **WriteDaily) {
	if *wd == nil {
		return
	}
	(*wd).Sync()
	(*wd).Close()
	*wd = nil
}

// Close flushes log files and stops sending events
func Close() {
	stopRemote()
	CloseWriteDaily(&logFile)
	CloseWriteDaily(&errorsLog)
	CloseWriteDaily(&eventsLog)
	onLog = nil
}

// FormatLine formats a log line as "2006-01-02 15:04:05,000 - LEVEL - msg\n"
func FormatLine(t time.Time, level string, msg string) string {
	ts := t.Format("2006-01-02 15:04:05.000")
	// comma before milliseconds
	ts = ts[:19] + "," + ts[20:]
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	return ts + " - " + level + " - " + msg
}

func logLevel(level string, s string, args ...any) string {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	line := FormatLine(time.Now(), level, s)
	if Console != nil {
		io.WriteString(Console, line)
	}
	logFile.WriteString(line)
	if onLog != nil {
		onLog(line)
	}
	return line
}

func Logf(s string, args ...any) {
	logLevel(LevelInfo, s, args...)
}

func Infof(s string, args ...any) {
	logLevel(LevelInfo, s, args...)
}

func Verbosef(format string, args ...any) {
	if !Verbose {
		return
	}
	logLevel(LevelDebug, format, args...)
}

// Errorf logs an error message and saves it along with the callstack
// in errors log
func Errorf(s string, args ...any) {
	line := logLevel(LevelError, s, args...)
	if errorsLog == nil {
		return
	}
	cs := GetCallstack(1)
	errorsLog.WriteString(line + cs + "\n")
}

// if err != nil, log and return true
// IfErrf(err) => logs err.Error()
// IfErrf(err, "error is: %v", err) => logs message formatted
func IfErrf(err error, a ...any) bool {
	if err == nil {
		return false
	}
	if len(a) == 0 {
		Errorf("%s", err.Error())
		return true
	}
	s, ok := a[0].(string)
	if !ok {
		// shouldn't happen but just in case
		s = fmt.Sprintf("%s", a[0])
	}
	Errorf(s, a[1:]...)
	return true
}

func GetCallstackFrames(skip int) []string {
	var callers [32]uintptr
	n := runtime.Callers(skip+1, callers[:])
	frames := runtime.CallersFrames(callers[:n])
	var cs []string
	for {
		frame, more := frames.Next()
		s := frame.File + ":" + strconv.Itoa(frame.Line)
		cs = append(cs, s)
		if !more {
			break
		}
	}
	return cs
}

func GetCallstack(skip int) string {
	frames := GetCallstackFrames(skip + 1)
	return strings.Join(frames, "\n")
}
