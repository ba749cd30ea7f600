package main

import (
	"fmt"
	"io"
	"os"

	"github.com/warpdl/mogwai/cmd"
)

var (
	version   string
	commit    string
	date      string
	buildType string = "unclassified"
)

var osExit = os.Exit

func main() {
	osExit(runMain(os.Args, os.Stderr, execute))
}

func execute(args []string) error {
	return cmd.Execute(args, cmd.BuildArgs{
		Version:   version,
		Commit:    commit,
		Date:      date,
		BuildType: buildType,
	})
}

// runMain returns the process exit status for args.
func runMain(args []string, stderr io.Writer, run func([]string) error) int {
	if err := run(args); err != nil {
		fmt.Fprintf(stderr, "mogwai: %v\n", err)
		return 1
	}
	return 0
}
