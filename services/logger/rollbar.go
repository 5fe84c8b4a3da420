package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/mentora/core"
)

// RollbarLogger prints to std and reports to Rollbar, when a token is configured.
type RollbarLogger struct {
	std   *log.Logger
	debug bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{std: std, debug: conf.Debug}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Close waits for queued reports to be sent.
func (l *RollbarLogger) Close() {
	rollbar.Close()
}

// prepare splits args into rollbar's (error, extras map) and the Participant concerned, if any.
func (l *RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, *core.Participant) {
	var who *core.Participant
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case core.Participant:
			if who == nil {
				who = &a
			}
		case *core.Participant:
			if who == nil && a != nil {
				who = a
			}
		default:
			newArgs = append(newArgs, arg)
		}
	}
	return newArgs, who
}

func (l *RollbarLogger) report(level string, msg string, args []interface{}) {
	newArgs, who := l.prepare(msg, args)
	if who != nil {
		rollbar.SetPerson(who.ID, who.Name, "")
	} else {
		rollbar.ClearPerson()
	}
	rollbar.Log(level, newArgs...)

	l.std.Printf("[%s] %s", level, msg)
	if who != nil {
		l.std.Printf("participant: %s (%s)", who.ID, who.Name)
	}
	for _, arg := range newArgs[1:] {
		l.std.Printf("%+v", arg)
	}
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.report(rollbar.DEBUG, msg, args)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	l.report(rollbar.INFO, msg, args)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.WARN, msg, args)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	l.report(rollbar.ERR, msg, args)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.CRIT, msg, args)
	rollbar.Close()
	l.std.Fatal(msg)
}
