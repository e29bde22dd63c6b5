package stdlogger

import (
	"fmt"
	"log"
	"strings"

	hub "github.com/salvationdao/hubotel"
)

type stdLogger struct {
	out    *log.Logger
	err    error
	fields string
}

// New returns a hub.Logger writing through out, or the standard logger when out is nil
func New(out *log.Logger) hub.Logger {
	if out == nil {
		out = log.Default()
	}
	return &stdLogger{out: out}
}

// Err returns a COPY of the logger with error attached.
// err needs attaching so it is readabible available for log libraries like ZeroLog that take errors in a function independent of the message.
//
// A copy is returned to avoid error being echoed out of it's scope.
//
// I.E.
//
//	// BAD
//	➜  go run main.go
//	9:31AM WRN Failed to initialise sentry error="[Sentry] DsnParseError: invalid scheme"
//	9:31AM TRC registered CHECK error="[Sentry] DsnParseError: invalid scheme"
//	9:31AM INF Starting API error="[Sentry] DsnParseError: invalid scheme"
//	// Good
//	➜  go run main.go
//	9:32AM WRN Failed to initialise sentry error="[Sentry] DsnParseError: invalid scheme"
//	9:32AM TRC registered CHECK
//	9:32AM INF Starting API
func (l *stdLogger) Err(err error) hub.Logger {
	return &stdLogger{out: l.out, err: err, fields: l.fields}
}

// With returns a COPY of the logger that appends key=value to every line
func (l *stdLogger) With(key string, value interface{}) hub.Logger {
	return &stdLogger{out: l.out, err: l.err, fields: l.fields + fmt.Sprintf(" %s=%v", key, value)}
}

func (l *stdLogger) Panicf(format string, a ...interface{}) {
	if l.err != nil {
		format = format + " error=%v"
		a = append(a, l.err)
	}
	pnc := fmt.Errorf(format, a...)
	panic(pnc)
}
func (l *stdLogger) Errorf(format string, a ...interface{}) {
	l.printer("Error: "+format, a...)
}
func (l *stdLogger) Warnf(format string, a ...interface{}) {
	l.printer("Warn: "+format, a...)
}
func (l *stdLogger) Infof(format string, a ...interface{}) {
	l.printer("Info: "+format, a...)
}
func (l *stdLogger) Debugf(format string, a ...interface{}) {
	l.printer("Debug: "+format, a...)
}
func (l *stdLogger) Tracef(format string, a ...interface{}) {
	l.printer("Trace: "+format, a...)
}

func (l *stdLogger) printer(format string, a ...interface{}) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf(format, a...))
	b.WriteString(l.fields)
	if l.err != nil {
		b.WriteString(fmt.Sprintf(" error=%v", l.err))
	}
	l.out.Print(b.String())
}
