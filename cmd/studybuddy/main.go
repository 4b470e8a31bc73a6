// Command studybuddy runs the study buddy matching service.
package main

import (
	"fmt"
	"os"

	"github.com/sejongpeer/studybuddy/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
