// This file implements the chats subcommands (list, create) and the shared
// client setup used by the chat view.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/glowshop/supportchat/internal/chatlist"
	"github.com/glowshop/supportchat/internal/config"
)

// commonFlags holds the flags shared by every subcommand.
type commonFlags struct {
	configPath string
	serverURL  string
}

func registerCommonFlags(fs *flag.FlagSet, flags *commonFlags) {
	fs.StringVar(&flags.configPath, "config", "", "config file path")
	fs.StringVar(&flags.serverURL, "server", "", "chat server origin (overrides config)")
}

// loadConfig loads the config file and applies flag overrides. When no
// explicit path is given, a commented default config is written on first
// run so users have a file to edit.
func loadConfig(flags commonFlags) (*config.Config, error) {
	if flags.configPath == "" {
		if path, err := config.DefaultConfigPath(); err == nil {
			if err := config.WriteDefault(path); err != nil {
				log.Printf("supportchat: writing default config: %v", err)
			}
		}
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.serverURL != "" {
		cfg.ServerURL = flags.serverURL
	}
	return cfg, nil
}

// runChatsList handles "supportchat chats list".
func runChatsList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chats list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags commonFlags
	registerCommonFlags(fs, &flags)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	client, err := chatlist.NewClient(cfg.APIBase(), nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	chats, err := client.List(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if len(chats) == 0 {
		fmt.Fprintln(stdout, "No chats yet. Open one with 'supportchat chats create <topic>'.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOPIC\tCREATED\tACTIVE")
	for _, c := range chats {
		active := "yes"
		if !c.IsActive {
			active = "no"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Topic, c.CreatedAt, active)
	}
	w.Flush()
	return 0
}

// runChatsCreate handles "supportchat chats create <topic>".
func runChatsCreate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chats create", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags commonFlags
	registerCommonFlags(fs, &flags)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	topic := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if topic == "" {
		fmt.Fprintln(stderr, "Usage: supportchat chats create <topic>")
		return 1
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	client, err := chatlist.NewClient(cfg.APIBase(), nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// A list call first so the server seeds the CSRF cookie the create
	// needs.
	if _, err := client.List(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	created, err := client.Create(ctx, topic)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Created chat %d: %s\n", created.ID, created.Topic)
	fmt.Fprintf(stdout, "Open it with: supportchat chat %d\n", created.ID)
	return 0
}
