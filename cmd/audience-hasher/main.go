// Command audience-hasher turns customer spreadsheets into hashed Custom
// Audience files and uploads them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/ignite/audience-hasher/internal/audience"
	"github.com/ignite/audience-hasher/internal/meta"
	"github.com/spf13/pflag"
)

var (
	// set with -ldflags at build time
	version = "dev"
	commit  = "none"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitEmpty   = 3
)

// errUsage marks command-line mistakes.
var errUsage = errors.New("usage error")

func usageErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, stdout, stderr io.Writer) error
}

var commands = []command{
	{"columns", "list the header and first rows of an input file", runColumns},
	{"hash", "normalize, deduplicate and hash an input file into FN,LN,PHONE digests", runHash},
	{"upload", "add a digest file to an existing Custom Audience", runUpload},
}

func main() {
	ctx, cancel := rootContextWithSignals()
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run dispatches to a subcommand and maps its error to an exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}
	switch args[0] {
	case "-h", "--help", "help":
		printUsage(stdout)
		return exitOK
	case "version", "--version":
		fmt.Fprintf(stdout, "audience-hasher %s (%s)\n", version, commit)
		return exitOK
	}

	for _, c := range commands {
		if c.name == args[0] {
			return exitCode(c.run(ctx, args[1:], stdout, stderr), stderr)
		}
	}
	fmt.Fprintf(stderr, "Error: unknown command %q\n\n", args[0])
	printUsage(stderr)
	return exitUsage
}

func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	case errors.Is(err, audience.ErrEmptyResult), errors.Is(err, meta.ErrNoRows):
		fmt.Fprintf(stderr, "Nothing to export: %v\n", err)
		return exitEmpty
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: audience-hasher <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w, "  version  print the version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'audience-hasher <command> --help' for command flags.")
}

// rootContextWithSignals returns a context canceled on SIGINT or SIGTERM.
// The cancel function also stops signal delivery.
func rootContextWithSignals() (context.Context, context.CancelFunc) {
	base, baseCancel := context.WithCancel(context.Background())

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-ch:
			baseCancel()
		case <-base.Done():
		}
	}()

	return base, func() {
		signal.Stop(ch)
		baseCancel()
	}
}
