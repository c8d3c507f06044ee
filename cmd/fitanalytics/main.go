package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type command struct {
	summary string
	run     func(args []string) error
}

var commands = map[string]command{
	"serve":   {"run the HTTP API", runServe},
	"import":  {"import FIT files or directories for an athlete", runImport},
	"climbs":  {"analyze climbs", runClimbs},
	"ftp":     {"estimate FTP from power data", runFTP},
	"cadence": {"analyze cadence efficiency", runCadence},
	"trends":  {"compare training periods", runTrends},
	"export":  {"write climbs/power curve parquet or the climb trend chart", runExport},
	"migrate": {"apply store migrations", runMigrate},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [flags]\n\nCommands:\n", filepath.Base(os.Args[0]))
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(os.Stderr, "\nRun '%s <command> --help' for command flags.\n", filepath.Base(os.Args[0]))
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err := cmd.run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}
