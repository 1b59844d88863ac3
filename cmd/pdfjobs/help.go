package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: pdfjobs <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve      Run the PDF job server")
	fmt.Fprintln(w, "  merge      Merge local PDF files")
	fmt.Fprintln(w, "  split      Split a local PDF file into chunks")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'pdfjobs help <command>' for details on a specific command.")
}

// printServeUsage prints usage for the serve command.
func printServeUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: pdfjobs serve [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run the HTTP API and the background job pipeline.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "      --env-file <path>     Dotenv file (default: .env if present)")
	fmt.Fprintln(w, "      --addr <addr>         Listen address (default :8080)")
	fmt.Fprintln(w, "  -w, --workers <n>         Job workers (default 3)")
	fmt.Fprintln(w, "      --browsers <n>        Headless browsers (0 = auto)")
	fmt.Fprintln(w, "      --store <driver>      Binary store: fs, postgres")
	fmt.Fprintln(w, "      --log-level <level>   debug, info, warn, error")
	fmt.Fprintln(w, "      --pretty              Human-readable console logs")
	fmt.Fprintln(w, "      --allow-origin <url>  Extra origin for /v1/events (repeatable, * = any)")
	fmt.Fprintln(w, "      --print-config        Print the effective configuration and exit")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  PDFJOBS_* variables override the config file; flags override both.")
	fmt.Fprintln(w, "  ROD_BROWSER_BIN           Path to a Chrome/Chromium binary")
	fmt.Fprintln(w, "  ROD_NO_SANDBOX=1          Disable the Chrome sandbox (Docker/CI)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Endpoints:")
	fmt.Fprintln(w, "  POST /v1/pdf/{generate,fill-form,merge,split,header-footer,replace-images,add-images}")
	fmt.Fprintln(w, "  GET  /v1/events           WebSocket stream of job results")
	fmt.Fprintln(w, "  GET  /v1/healthz          Queue depth and worker backlog")
}

// printMergeUsage prints usage for the merge command.
func printMergeUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: pdfjobs merge <input>... [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Merge PDF files in order. Append :from-to to an input to keep")
	fmt.Fprintln(w, "only those pages (1-based, inclusive): a.pdf:2-5, b.pdf:3-, c.pdf:-4.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -o, --output <path>       Output file (default merged.pdf)")
}

// printSplitUsage prints usage for the split command.
func printSplitUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: pdfjobs split <input> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Split a PDF into chunks of N pages named <input>-1.pdf, <input>-2.pdf, ...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -n, --interval <n>        Pages per chunk (default 1)")
	fmt.Fprintln(w, "  -o, --output <dir>        Output directory (default: input directory)")
}
