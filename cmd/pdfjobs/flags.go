package main

import (
	"errors"
	"os"

	flag "github.com/spf13/pflag"
)

// serveFlags holds flags for the serve command.
type serveFlags struct {
	config   string
	envFile  string
	addr     string
	workers  int
	browsers int
	store    string
	logLevel string
	pretty   bool
	origins  []string
	dump     bool
}

// mergeFlags holds flags for the merge command.
type mergeFlags struct {
	output string
}

// splitFlags holds flags for the split command.
type splitFlags struct {
	output   string
	interval int
}

// parseServeFlags parses serve command flags and returns positional args.
func parseServeFlags(args []string) (*serveFlags, []string, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	f := &serveFlags{}

	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.StringVar(&f.envFile, "env-file", "", "dotenv file to read (default: .env if present)")
	fs.StringVar(&f.addr, "addr", "", "HTTP listen address")
	fs.IntVarP(&f.workers, "workers", "w", 0, "job workers (0 = config)")
	fs.IntVar(&f.browsers, "browsers", -1, "headless browsers (0 = auto)")
	fs.StringVar(&f.store, "store", "", "binary store: fs, postgres")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&f.pretty, "pretty", false, "human-readable console logs")
	fs.StringSliceVar(&f.origins, "allow-origin", nil, "extra origin allowed to open the event socket (repeatable)")
	fs.BoolVar(&f.dump, "print-config", false, "print the effective configuration and exit")

	fs.Usage = func() { printServeUsage(os.Stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}

// parseMergeFlags parses merge command flags and returns positional args.
func parseMergeFlags(args []string) (*mergeFlags, []string, error) {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	f := &mergeFlags{}

	fs.StringVarP(&f.output, "output", "o", "merged.pdf", "output PDF file")
	fs.Usage = func() { printMergeUsage(os.Stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}

// parseSplitFlags parses split command flags and returns positional args.
func parseSplitFlags(args []string) (*splitFlags, []string, error) {
	fs := flag.NewFlagSet("split", flag.ContinueOnError)
	f := &splitFlags{}

	fs.StringVarP(&f.output, "output", "o", "", "output directory (default: input directory)")
	fs.IntVarP(&f.interval, "interval", "n", 1, "pages per chunk")
	fs.Usage = func() { printSplitUsage(os.Stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}

// isHelpRequest reports whether a parse error came from -h or --help.
func isHelpRequest(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
