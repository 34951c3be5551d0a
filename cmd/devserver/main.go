// Command devserver runs the in-memory development chat server. It speaks
// the same socket protocol and REST envelope as the production backend, so
// the supportchat client can be exercised locally end to end.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/glowshop/supportchat/internal/devserver"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("devserver", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:8990", "listen address")
	seed := fs.String("seed", "", "comma-separated chat topics to create at startup")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	srv := devserver.New()

	if *seed != "" {
		for _, topic := range strings.Split(*seed, ",") {
			topic = strings.TrimSpace(topic)
			if topic == "" {
				continue
			}
			created := srv.Store().CreateChat(topic)
			log.Printf("devserver: seeded chat %d: %s", created.ID, created.Topic)
		}
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-done
		log.Printf("devserver: shutting down")
		if err := srv.Shutdown(); err != nil {
			log.Printf("devserver: shutdown: %v", err)
		}
	}()

	if err := srv.Listen(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
