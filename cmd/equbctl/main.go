package main

import (
	"fmt"
	"os"

	"github.com/mmynk/equb/internal/cli"
	"github.com/mmynk/equb/pkg/logging"
)

func main() {
	logging.Setup("", "")

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
