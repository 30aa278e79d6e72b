package main

import (
	"os"

	"github.com/fatih/color"
)

func main() {
	rc := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := rc.Execute(); err != nil {
		color.Red("%s", err)
		os.Exit(1)
	}
}
