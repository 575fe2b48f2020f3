package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/funvibe/consteval/internal/config"
	"github.com/funvibe/consteval/internal/export"
	"github.com/funvibe/consteval/internal/fixture"
	"github.com/funvibe/consteval/internal/interpreter"
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/resultcache"
)

const usage = `Usage: consteval [options] <fixture.yaml> [name...]

Evaluates the named expressions of an IR fixture at compile time and prints
one "name = value" line per expression. Without names every expression of
the fixture is evaluated, in declaration order.

Options:
  -config <file>  configuration file (default: consteval.yaml next to the
                  fixture or in a parent directory)
  -json           print a JSON document instead of text
  -trace          log every interpreted instruction to stderr
  -cache <db>     reuse and store results in a SQLite database

Exit status is 1 when any expression fails to evaluate.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// outcome is the result of one named expression, fresh or cached.
type outcome struct {
	name   string
	text   string
	value  *structpb.Value
	failed bool
	cached bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("consteval", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "configuration file")
	asJSON := fs.Bool("json", false, "print JSON")
	trace := fs.Bool("trace", false, "trace instructions")
	cachePath := fs.String("cache", "", "result cache database")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 1
	}
	path := fs.Arg(0)

	cfg, err := loadConfig(*configPath, filepath.Dir(path))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	if *trace {
		cfg.Trace = true
		cfg.LogLevel = config.LogLevelTrace
	}
	log := newLogger(stderr, cfg.LogLevel)

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	b := ir.NewBuiltIns()
	prog, err := fixture.Decode(data, filepath.Base(path), b)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	names := fs.Args()[1:]
	if len(names) == 0 {
		names = prog.Names()
	}
	for _, name := range names {
		if prog.Lookup(name) == nil {
			fmt.Fprintf(stderr, "Error: %s has no expression %q\n", path, name)
			return 1
		}
	}

	ctx := context.Background()
	var cache *resultcache.Cache
	key := resultcache.Key(data)
	source, _ := filepath.Abs(path)
	if *cachePath != "" {
		if cache, err = resultcache.Open(ctx, *cachePath); err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return 1
		}
		defer cache.Close()
	}

	in := interpreter.New(b, interpreter.WithConfig(cfg), interpreter.WithLogger(log))
	outcomes := make([]*outcome, 0, len(names))
	var fresh []*resultcache.Entry
	for _, name := range names {
		if cache != nil {
			if o := lookup(ctx, cache, source, key, name, log); o != nil {
				outcomes = append(outcomes, o)
				continue
			}
		}
		o, entry := evaluate(in, prog, name, log)
		outcomes = append(outcomes, o)
		if entry != nil {
			entry.Fixture, entry.Source = key, source
			fresh = append(fresh, entry)
		}
	}

	if cache != nil {
		if err := cache.Put(ctx, fresh...); err != nil {
			log.Warn().Err(err).Msg("results not cached")
		} else if n, err := cache.Prune(ctx, source, key); err != nil {
			log.Warn().Err(err).Msg("stale results not pruned")
		} else if n > 0 {
			log.Debug().Int64("rows", n).Str("fixture", source).Msg("pruned stale results")
		}
	}

	if *asJSON {
		if err := printJSON(stdout, outcomes); err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return 1
		}
	} else {
		printText(stdout, stderr, outcomes)
	}
	for _, o := range outcomes {
		if o.failed {
			return 1
		}
	}
	return 0
}

func loadConfig(path, dir string) (*config.Config, error) {
	if path == "" {
		found, err := config.FindConfig(dir)
		if err != nil || found == "" {
			return config.Default(), err
		}
		path = found
	}
	return config.LoadConfig(path)
}

// newLogger writes human-readable logs to w, coloured when w is a terminal.
func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	out := zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func lookup(ctx context.Context, cache *resultcache.Cache, source, key, name string, log zerolog.Logger) *outcome {
	e, err := cache.Get(ctx, source, key, name)
	if err != nil {
		if !errors.Is(err, resultcache.ErrMiss) {
			log.Warn().Err(err).Str("name", name).Msg("cache lookup failed")
		}
		return nil
	}
	o := &outcome{name: name, text: e.Text, failed: e.Failed, cached: true}
	if len(e.JSON) > 0 {
		if o.value, err = export.UnmarshalValue(e.JSON); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("ignoring cached result")
			return nil
		}
	}
	log.Debug().Str("name", name).Str("session", e.Session.String()).Msg("cache hit")
	return o
}

// evaluate interprets one expression. The returned entry is nil for
// failures that are not worth caching, such as timeouts.
func evaluate(in *interpreter.Interpreter, prog *fixture.Program, name string, log zerolog.Logger) (*outcome, *resultcache.Entry) {
	res, err := in.Interpret(prog.Lookup(name).Expr, prog.File)
	e := export.Entry{Name: name, Err: err}
	o := &outcome{name: name, failed: err != nil}
	if err != nil {
		o.text = err.Error()
	} else {
		e.Value = res.Value
		o.text = res.Text
	}

	v, xerr := export.EntryValue(e)
	if xerr != nil {
		log.Warn().Err(xerr).Str("name", name).Msg("value cannot be exported")
		v = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			export.ErrorKey: structpb.NewStringValue(xerr.Error()),
		}})
	}
	o.value = v

	var uncaught *interpreter.UncaughtException
	if err != nil && !errors.As(err, &uncaught) {
		return o, nil
	}
	entry := &resultcache.Entry{Name: name, Text: o.text, Failed: o.failed}
	if xerr == nil {
		if entry.JSON, xerr = export.MarshalEntry(e); xerr != nil {
			return o, nil
		}
	}
	if res != nil {
		entry.Session, entry.Instructions = res.SessionID, res.Instructions
	}
	return o, entry
}

func printText(stdout, stderr io.Writer, outcomes []*outcome) {
	for _, o := range outcomes {
		if o.failed {
			fmt.Fprintf(stderr, "%s: %s\n", o.name, o.text)
			continue
		}
		fmt.Fprintf(stdout, "%s = %s\n", o.name, o.text)
	}
}

func printJSON(w io.Writer, outcomes []*outcome) error {
	doc := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(outcomes))}
	for _, o := range outcomes {
		v := o.value
		if v == nil {
			v = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
				export.ErrorKey: structpb.NewStringValue(o.text),
			}})
		}
		doc.Fields[o.name] = v
	}
	data, err := export.Render(doc)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
