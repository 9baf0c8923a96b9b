package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/quantarax/blocksig/internal/catalog"
)

const usage = `Usage: sigcatalog [--db path] <command> [args]

Commands:
  latest <input>      print the manifest of the newest signature of input
  show <run-id>       print the manifest of one run
  gc [--max-age d]    remove runs older than d (default 720h)
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sigcatalog", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	path := fs.String("db", "blocksig.db", "Path to the bolt catalog")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cat, err := catalog.Open(*path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer cat.Close()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "latest", "show":
		if len(rest) != 1 {
			fs.Usage()
			return 2
		}
		lookup := cat.Get
		if cmd == "latest" {
			lookup = cat.LatestFor
		}
		m, err := lookup(rest[0])
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		jsonData, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "Error serializing manifest: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, string(jsonData))

	case "gc":
		gcFlags := flag.NewFlagSet("gc", flag.ContinueOnError)
		gcFlags.SetOutput(stderr)
		maxAge := gcFlags.Duration("max-age", 30*24*time.Hour, "Max age for catalog entries")
		if err := gcFlags.Parse(rest); err != nil {
			return 2
		}
		removed, err := cat.GC(*maxAge)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Catalog GC removed %d entries older than %s\n", removed, maxAge.String())

	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}
	return 0
}
