package debug

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures the logger installed by WithLogger
type Options struct {
	Writer io.Writer
	Debug  bool
	Color  bool
	// JSON writes raw zerolog json lines instead of the console format
	JSON bool
}

// WithLogger installs a zerolog logger in ctx and tags it with a fresh run id.
func WithLogger(ctx context.Context, opts Options) context.Context {
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	var w io.Writer = opts.Writer
	if !opts.JSON {
		w = zerolog.ConsoleWriter{
			Out:          opts.Writer,
			NoColor:      !opts.Color,
			PartsExclude: []string{zerolog.TimestampFieldName},
		}
	}

	logger := zerolog.New(w).Level(level).With().
		Str("run", uuid.NewString()).
		Logger().
		Hook(CustomTimeHook{WithColor: opts.Color})

	if opts.Debug {
		logger = logger.Hook(CustomCallerHook{WithColor: opts.Color})
	}

	return logger.WithContext(ctx)
}

type CustomTimeHook struct {
	WithColor bool
	Format    string
}

func (t CustomTimeHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	if t.Format == "" {
		// milisecond precision with no timezone
		e.Str("time", time.Now().Format("2006-01-02T15:04:05.0000Z"))
	} else {
		e.Str("time", time.Now().Format(t.Format))
	}
}

type CustomCallerHook struct {
	WithColor bool
}

// callerSkip steps over Run, the zerolog hook dispatch and Msg
const callerSkip = 3

func (c CustomCallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	pc, file, line, ok := runtime.Caller(callerSkip)
	if !ok {
		return
	}

	funcd := runtime.FuncForPC(pc)
	if funcd == nil {
		return
	}

	pkg, _ := GetPackageAndFuncFromFuncName(funcd.Name())

	e.Str("caller", FormatCaller(pkg, file, line, c.WithColor))
}

func GetPackageAndFuncFromFuncName(pc string) (pkg, function string) {
	funcName := pc
	lastSlash := strings.LastIndexByte(funcName, '/')
	if lastSlash < 0 {
		lastSlash = 0
	}

	firstDot := strings.IndexByte(funcName[lastSlash:], '.') + lastSlash
	if firstDot < lastSlash {
		return funcName, ""
	}

	pkg = funcName[:firstDot]
	fname := funcName[firstDot+1:]

	if strings.Contains(pkg, ".(") {
		splt := strings.Split(pkg, ".(")
		pkg = splt[0]
		fname = "(" + splt[1] + "." + fname
	}

	return pkg, fname
}

func FormatCaller(pkg, path string, number int, colorize bool) string {
	p := FileNameOfPath(path)
	if colorize {
		p = color.New(color.Bold).Sprint(p)
		num := color.New(color.FgHiRed, color.Bold).Sprintf("%d", number)
		sep := color.New(color.Faint).Sprint(":")

		return fmt.Sprintf("%s%s%s%s%s", pkg, sep, p, sep, num)
	}

	return fmt.Sprintf("%s:%s:%d", pkg, p, number)
}

func FileNameOfPath(path string) string {
	tot := strings.Split(path, "/")
	if len(tot) > 1 {
		return tot[len(tot)-1]
	}

	return path
}
