// Command rta-log views and analyzes bridge protocol log files.
//
// Log files are written by rta and rta-device when run with the
// -protocol-log flag.
//
// Usage:
//
//	rta-log <command> [flags] <file.rlog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL or CSV
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View only dispatcher events
//	rta-log view -layer dispatch client.rlog
//
//	# Follow one request
//	rta-log view -id 42 client.rlog
//
//	# Export failed calls to CSV
//	rta-log export -format csv -category message client.rlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/georgejecook/roku-test-automation/cmd/rta-log/commands"
	"github.com/georgejecook/roku-test-automation/pkg/log"
	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

const usage = `rta-log - Bridge Protocol Log Analyzer

Usage:
  rta-log <command> [flags] <file.rlog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL or CSV
  stats    Show statistics about the log file

Use "rta-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags registers the event filter flags on fs.
func filterFlags(fs *flag.FlagSet) func() log.Filter {
	layer := fs.String("layer", "", "Filter by layer (transport, wire, dispatch)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, state, error)")
	connID := fs.String("conn-id", "", "Filter by connection ID")
	id := fs.Uint64("id", 0, "Filter by message correlation id")
	kind := fs.String("kind", "", "Filter requests by operation (e.g. observeField)")

	return func() log.Filter {
		var filter log.Filter
		filter.ConnectionID = *connID
		if *layer != "" {
			l, err := commands.ParseLayer(*layer)
			exitOnError(err)
			filter.Layer = &l
		}
		if *direction != "" {
			d, err := commands.ParseDirection(*direction)
			exitOnError(err)
			filter.Direction = &d
		}
		if *category != "" {
			c, err := commands.ParseCategory(*category)
			exitOnError(err)
			filter.Category = &c
		}
		if *id != 0 {
			filter.MessageID = id
		}
		if *kind != "" {
			k, ok := wire.ParseKind(*kind)
			if !ok {
				exitOnError(fmt.Errorf("invalid kind: %s", *kind))
			}
			filter.Kind = &k
		}
		return filter
	}
}

func logPath(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `rta-log view - View log file in human-readable format

Usage:
  rta-log view [flags] <file.rlog>

Flags:
`)
		fs.PrintDefaults()
	}
	filter := filterFlags(fs)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	exitOnError(commands.RunView(logPath(fs), filter(), os.Stdout))
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `rta-log export - Export log file to JSONL or CSV

Usage:
  rta-log export [flags] <file.rlog>

Flags:
`)
		fs.PrintDefaults()
	}
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	filter := filterFlags(fs)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	exitOnError(commands.RunExport(logPath(fs), *format, *output, filter()))
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `rta-log stats - Show statistics about the log file

Usage:
  rta-log stats <file.rlog>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	exitOnError(commands.RunStats(logPath(fs), os.Stdout))
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
