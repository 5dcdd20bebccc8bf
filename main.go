// Package main is the entry point for the patcher CLI application.
// It initializes all subcommands and executes the root command.
package main

import (
	"github.com/lucho00cuba/patcher/cmd"
	_ "github.com/lucho00cuba/patcher/cmd/apply"
	_ "github.com/lucho00cuba/patcher/cmd/create"
	_ "github.com/lucho00cuba/patcher/cmd/inspect"
	_ "github.com/lucho00cuba/patcher/cmd/verify"
)

// main is the entry point of the application.
// It executes the root command which handles all CLI interactions.
func main() {
	cmd.Execute()
}
