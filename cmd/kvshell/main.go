// Command kvshell is an interactive line-oriented shell over a minikv
// store, for manual exploration and smoke-testing of either engine.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"minikv/internal/config"
	"minikv/internal/logging"
	"minikv/pkg/btree"
	"minikv/pkg/kv"
	"minikv/pkg/lsm"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minikv: load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := kv.Open(cfg)
	if err != nil {
		logger.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", "err", err)
		}
	}()

	logger.Info("minikv shell ready", "engine", cfg.Engine, "dataDir", cfg.DataDir)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received, closing store")
		store.Close()
		os.Exit(0)
	}()

	runShell(store, logger, os.Stdin, os.Stdout)
}

func runShell(store kv.KV, logger *slog.Logger, in *os.File, out *os.File) {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			handleLine(store, logger, out, line)
		}
		fmt.Fprint(out, "> ")
	}
}

func handleLine(store kv.KV, logger *slog.Logger, out *os.File, line string) {
	fields := strings.Fields(line)
	cmd := fields[0]

	switch cmd {
	case "put":
		if len(fields) < 3 {
			fmt.Fprintln(out, "usage: put <key> <value>")
			return
		}
		value := strings.Join(fields[2:], " ")
		if err := store.Put([]byte(fields[1]), []byte(value)); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return
		}
		fmt.Fprintln(out, "ok")

	case "get":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: get <key>")
			return
		}
		val, found, err := store.Get([]byte(fields[1]))
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return
		}
		if !found {
			fmt.Fprintln(out, "(not found)")
			return
		}
		fmt.Fprintln(out, string(val))

	case "delete":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: delete <key>")
			return
		}
		if err := store.Delete([]byte(fields[1])); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return
		}
		fmt.Fprintln(out, "ok")

	case "stats":
		fmt.Fprintf(out, "%+v\n", stats(store))

	case "quit", "exit":
		logger.Info("shell exiting on command")
		store.Close()
		os.Exit(0)

	default:
		fmt.Fprintf(out, "unknown command %q (expected put/get/delete/stats/quit)\n", cmd)
	}
}

// stats returns the engine-specific Stats value by type-switching on
// the concrete engine behind the interface. Neither engine exposes
// Stats on the shared kv.KV interface, since it is a debugging aid
// rather than a semantics every store needs to support.
func stats(store kv.KV) any {
	switch s := store.(type) {
	case *lsm.Engine:
		return s.Stats()
	case *btree.Engine:
		return s.Stats()
	default:
		return "stats unavailable for this engine type"
	}
}
