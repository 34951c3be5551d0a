package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd/supportchat
var Version = "dev"

const usage = `supportchat - terminal client for the storefront support chat

Usage:
  supportchat <command> [options]

Commands:
  chat [chat-id]        Open the chat view (picker when no id is given)
  chats list            List your chats
  chats create <topic>  Open a new chat

Options common to all commands:
  --config <path>       Config file (default ~/.supportchat/config.toml)
  --server <url>        Chat server origin (overrides config)

Run 'supportchat <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "chat":
		return runChat(args[2:], stdout, stderr)
	case "chats":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: supportchat chats <list|create>")
			return 1
		}
		switch args[2] {
		case "list":
			return runChatsList(args[3:], stdout, stderr)
		case "create":
			return runChatsCreate(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown chats command: %s\n", args[2])
			return 1
		}
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "supportchat %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
