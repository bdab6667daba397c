// Command tessera-check runs the Tessera semantic-analysis core over a
// parsed compilation unit and prints its diagnostics. The unit is a
// JSON-encoded AST produced by the host toolchain's parser; this
// driver performs no parsing of surface syntax.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/mattn/go-isatty"

	"github.com/tessera-lang/tessera/internal/analysis"
	"github.com/tessera-lang/tessera/internal/ast"
	"github.com/tessera-lang/tessera/internal/config"
	"github.com/tessera-lang/tessera/internal/diagnostics"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to tessera.yaml (default: ./tessera.yaml if present)")
		workers    = flag.Int("workers", 0, "parallel analysis workers (0 = one per CPU)")
		errorLimit = flag.Int("error-limit", 0, "stop after this many errors (0 = unlimited)")
		noColor    = flag.Bool("no-color", false, "disable colored output")
		watch      = flag.Bool("watch", false, "re-run analysis when the input file changes")
		verbose    = flag.Bool("v", false, "print the session ID and summary even on success")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: tessera-check [flags] <unit.json>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	inputPath := flag.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tessera-check: %v\n", err)
		os.Exit(2)
	}

	if *workers != 0 {
		cfg.Workers = *workers
	}

	if *errorLimit != 0 {
		cfg.ErrorLimit = *errorLimit
	}

	colorize := !*noColor && isatty.IsTerminal(os.Stderr.Fd())

	runner := &runner{
		input:    inputPath,
		cfg:      cfg,
		colorize: colorize,
		verbose:  *verbose,
	}

	if *watch {
		if err := runner.watchLoop(); err != nil {
			fmt.Fprintf(os.Stderr, "tessera-check: %v\n", err)
			os.Exit(2)
		}

		return
	}

	os.Exit(runner.runOnce())
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadOrDefault()
	}

	return config.Load(path)
}

type runner struct {
	input    string
	cfg      *config.Config
	colorize bool
	verbose  bool
}

// runOnce analyzes the input once and returns the process exit code.
func (r *runner) runOnce() int {
	f, err := os.Open(r.input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tessera-check: %v\n", err)

		return 2
	}
	defer f.Close()

	mod, err := ast.DecodeModule(f)
	if err != nil {
		// Malformed input is a contract violation by the upstream
		// parser, not a user-facing diagnostic.
		fmt.Fprintf(os.Stderr, "tessera-check: malformed unit %s: %v\n", r.input, err)

		return 2
	}

	result := analysis.Analyze(context.Background(), mod, analysis.Options{
		Workers:    r.cfg.Workers,
		ErrorLimit: r.cfg.ErrorLimit,
		Suppress:   r.cfg.SuppressedCodes(),
	})

	for _, d := range result.Diagnostics {
		fmt.Fprintln(os.Stderr, diagnostics.Format(d, r.colorize))
	}

	reporter := result.Reporter()

	failed := reporter.HasErrors()
	if r.cfg.WarningsAsErrors && reporter.Count() > 0 {
		failed = true
	}

	if failed || r.verbose {
		fmt.Fprintf(os.Stderr, "%s [session %s]\n", reporter.Summary(), result.Session)
	}

	if failed {
		return 1
	}

	return 0
}

// watchLoop re-runs analysis whenever the input file is written.
// Editors that replace the file on save emit Create/Rename, so those
// re-arm the watch as well.
func (r *runner) watchLoop() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(r.input); err != nil {
		return err
	}

	r.runOnce()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if ev.Op&fsnotify.Rename != 0 {
				// Re-add: the watched inode was replaced.
				_ = w.Add(r.input)
			}

			fmt.Fprintf(os.Stderr, "tessera-check: change detected, re-analyzing %s\n", r.input)
			r.runOnce()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			fmt.Fprintf(os.Stderr, "tessera-check: watch error: %v\n", err)
		}
	}
}
