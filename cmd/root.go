package cmd

import (
	"context"
	"fmt"
	"strings"

	"chat-relay/internal/version"
)

const usage = `chat-relay forwards single chat messages to an upstream chat-completion API.

Usage:
  chat-relay serve [flags]
  chat-relay version

Commands:
  serve    Start the HTTP server
  version  Print build information

Flags:
  -h, --help  Show this help message`

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "version", "--version":
		return printVersion()
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}

func printVersion() error {
	info := version.Get()
	fmt.Printf("%s %s (commit %s, built %s)\n", info.Name, info.Version, info.Commit, info.BuildDate)
	return nil
}
