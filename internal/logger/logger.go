package logger

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cenkalti/log"
)

var handler log.Handler

func init() {
	h := log.NewFileHandler(os.Stderr)
	h.SetFormatter(formatter{})
	handler = h
}

// SetHandler sets the handler given to loggers that New creates after this
// call. Loggers created earlier keep the handler they were created with.
func SetHandler(h log.Handler) {
	h.SetFormatter(formatter{})
	handler = h
}

// SetLevel sets the logging level on the current handler.
func SetLevel(l log.Level) {
	handler.SetLevel(l)
}

// Logger is the type of named loggers handed out to subsystems.
type Logger = log.Logger

// New returns a named Logger. The name is printed in front of every message.
func New(name string) Logger {
	l := log.NewLogger(name)
	l.SetLevel(log.DEBUG) // forward everything, the handler filters
	l.SetHandler(handler)
	return l
}

type formatter struct{}

// Format prints records as "2014-02-28 18:15:57 INFO     [swarm] message".
func (formatter) Format(rec *log.Record) string {
	return fmt.Sprintf("%s %-8s [%s] %s",
		fmt.Sprint(rec.Time)[:19],
		rec.Level,
		rec.LoggerName,
		quoteControl(rec.Message))
}

// quoteControl keeps remote-supplied strings from writing control
// characters into the log stream.
func quoteControl(s string) string {
	for _, r := range s {
		if r < 0x20 {
			return strconv.Quote(s)
		}
	}
	return s
}
