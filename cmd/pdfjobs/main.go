package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid,
	// in which case Go runtime defaults apply.
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	ctx, stop := notifyContext(context.Background())
	code := run(ctx, os.Args[1:], DefaultEnv())
	stop()
	os.Exit(code)
}

// run dispatches the command line and returns the process exit code.
func run(ctx context.Context, args []string, env *Environment) int {
	if len(args) == 0 {
		printUsage(env.Stderr)
		return ExitUsage
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "serve":
		err = runServe(ctx, rest, env)
	case "merge":
		err = runMerge(ctx, rest, env)
	case "split":
		err = runSplit(ctx, rest, env)
	case "version", "--version":
		fmt.Fprintf(env.Stdout, "pdfjobs %s\n", Version)
		return ExitSuccess
	case "help", "-h", "--help":
		return runHelp(rest, env)
	default:
		fmt.Fprintf(env.Stderr, "%v: %q\n\n", ErrUnknownCommand, cmd)
		printUsage(env.Stderr)
		return ExitUsage
	}

	if err != nil {
		if isHelpRequest(err) {
			return ExitSuccess
		}
		fmt.Fprintln(env.Stderr, err)
	}
	return exitCodeFor(err)
}

// runHelp prints usage for a command, or the main usage.
func runHelp(args []string, env *Environment) int {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return ExitSuccess
	}
	switch args[0] {
	case "serve":
		printServeUsage(env.Stdout)
	case "merge":
		printMergeUsage(env.Stdout)
	case "split":
		printSplitUsage(env.Stdout)
	default:
		fmt.Fprintf(env.Stderr, "%v: %q\n", ErrUnknownCommand, args[0])
		return ExitUsage
	}
	return ExitSuccess
}
