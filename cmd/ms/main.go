// cmd/ms is the minimal demo host program of spec §6: it loads a script,
// drives an internal/interp.Interpreter to completion, and optionally
// drops into a line-at-a-time REPL. It deliberately stays a single
// run/repl program rather than the teacher's multi-subcommand toolchain
// (SPEC_FULL.md scopes cmd/ms to "run / repl" only; lint/fmt/build/watch
// are out of scope here).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/msscript/ms/internal/interp"
	"github.com/msscript/ms/internal/mserr"
)

const version = "0.1.0"

func main() {
	timeLimit := flag.Duration("time-limit", 60*time.Second, "wall-clock budget per run_until_done call")
	noEarlyReturn := flag.Bool("no-early-return", false, "disable cooperative early return on yield/wait")
	replFlag := flag.Bool("repl", false, "start an interactive REPL instead of running a file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println("ms", version)
		return
	}

	sinks := stdSinks()

	if *replFlag || (flag.NArg() == 0 && isatty.IsTerminal(os.Stdin.Fd())) {
		runREPL(sinks, *timeLimit, !*noEarlyReturn)
		return
	}

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	src, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		rerr := mserr.Wrap(mserr.RuntimeError, err, "cannot read script %q", flag.Arg(0))
		fmt.Fprintln(os.Stderr, "ms:", rerr)
		os.Exit(1)
	}

	it := interp.New(string(src), sinks.stdout, sinks.implicit, sinks.errOut)
	if cErr := it.Compile(); cErr != nil {
		os.Exit(exitCodeFor(cErr))
	}
	for !it.Done() {
		if rErr := it.RunUntilDone(*timeLimit, !*noEarlyReturn); rErr != nil {
			os.Exit(exitCodeFor(rErr))
		}
	}
}

// exitCodeFor distinguishes a resource-limit violation (spec §5/§7, a host
// may want to retry elsewhere or raise its limits) from every other runtime
// or compile failure.
func exitCodeFor(err error) int {
	if mserr.Is(err, mserr.LimitExceeded) {
		return 3
	}
	return 1
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ms [flags] script.ms")
	fmt.Fprintln(os.Stderr, "       ms -repl [flags]")
	flag.PrintDefaults()
}

type sinkSet struct {
	stdout   interp.Sink
	implicit interp.Sink
	errOut   interp.Sink
}

func stdSinks() sinkSet {
	write := func(w io.Writer) interp.Sink {
		return func(text string, addEOL bool) {
			fmt.Fprint(w, text)
			if addEOL {
				fmt.Fprintln(w)
			}
		}
	}
	return sinkSet{
		stdout:   write(os.Stdout),
		implicit: write(os.Stdout),
		errOut:   write(os.Stderr),
	}
}

func runREPL(sinks sinkSet, timeLimit time.Duration, returnEarly bool) {
	it := interp.New("", sinks.stdout, sinks.implicit, sinks.errOut, interp.REPLMode())
	fmt.Printf("ms %s -- session %s\n", version, it.SessionID()[:8])

	interactive := isatty.IsTerminal(os.Stdin.Fd())
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			if it.NeedMoreInput() {
				fmt.Print("... ")
			} else {
				fmt.Print("> ")
			}
		}
		if !scanner.Scan() {
			return
		}
		if err := it.Repl(scanner.Text(), timeLimit); err != nil {
			continue
		}
	}
}
