// cmd/supportbot/main.go
package main

import (
	cmd "github.com/mwiater/supportbot/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// main injects the build metadata and hands off to the cobra root command.
func main() {
	cmd.SetVersionInfo(version, commit, date)
	cmd.Execute()
}
