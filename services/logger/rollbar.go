package logsvc

import (
	"context"
	"log"
	"strconv"

	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/access"
)

// Logger writes every event to a standard logger and reports it to Rollbar.
// Each Logger owns its Rollbar client, so the API and DB loggers can be toggled separately.
type Logger struct {
	std *log.Logger
	rb  *rollbar.Client
}

var _ core.Logger = (*Logger)(nil)

// New returns a Logger reporting to the Rollbar project of conf.RollbarToken; reporting is off without a token.
func New(std *log.Logger, conf *core.Config) *Logger {
	rb := rollbar.NewAsync(conf.RollbarToken, conf.Env, conf.Build, conf.Server.Host, "")
	rb.SetStackTracer(rollbarerrors.StackTracer)
	rb.SetEnabled(conf.RollbarToken != "")
	return &Logger{std: std, rb: rb}
}

// Enable turns Rollbar reporting on or off; events are still written to the standard logger.
func (l *Logger) Enable(enabled bool) {
	l.rb.SetEnabled(enabled)
}

// Close flushes the pending Rollbar reports.
func (l *Logger) Close() error {
	return l.rb.Close()
}

// event is a log call split into what Rollbar understands.
type event struct {
	err    error
	extras map[string]interface{}
	person *rollbar.Person
}

// parseArgs reads the args of a log call: at most one error, extra fields and the signed-in principal.
// Anything else becomes an "argN" extra.
func parseArgs(args []interface{}) event {
	var ev event
	put := func(k string, v interface{}) {
		if ev.extras == nil {
			ev.extras = make(map[string]interface{})
		}
		ev.extras[k] = v
	}

	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
		case *access.Principal:
			if v != nil && ev.person == nil {
				ev.person = &rollbar.Person{Id: v.UserID, Email: v.Email}
			}
		case error:
			if ev.err == nil {
				ev.err = v
			} else {
				put("error", v.Error())
			}
		case map[string]interface{}:
			for k, x := range v {
				put(k, x)
			}
		default:
			put("arg"+strconv.Itoa(i), v)
		}
	}
	return ev
}

func (l *Logger) report(level, msg string, args []interface{}) {
	ev := parseArgs(args)

	l.std.Println(msg)
	if ev.err != nil {
		l.std.Printf("%+v\n", ev.err)
	}
	for k, v := range ev.extras {
		l.std.Printf("%s=%+v\n", k, v)
	}

	ctx := context.Background()
	if ev.person != nil {
		ctx = rollbar.NewPersonContext(ctx, ev.person)
	}
	if ev.err != nil {
		extras := map[string]interface{}{"message": msg}
		for k, v := range ev.extras {
			extras[k] = v
		}
		l.rb.ErrorWithExtrasAndContext(ctx, level, ev.err, extras)
		return
	}
	l.rb.MessageWithExtrasAndContext(ctx, level, msg, ev.extras)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.report(rollbar.DEBUG, msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.report(rollbar.INFO, msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.report(rollbar.WARN, msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.report(rollbar.ERR, msg, args) }

func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.CRIT, msg, args)
	_ = l.rb.Close()
	l.std.Fatal(msg)
}
