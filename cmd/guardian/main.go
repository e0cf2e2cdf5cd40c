// Package main provides the Guardian background service. It runs the
// coordinator that connects page agents, the side panel, and the family
// backend, keeping per-role network rules installed and page context cached
// per tab. An inspect mode loads a single live page and prints the extracted
// context for debugging extraction quality.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"

	"github.com/entrhq/guardian/pkg/backend"
	"github.com/entrhq/guardian/pkg/browse"
	"github.com/entrhq/guardian/pkg/bus"
	"github.com/entrhq/guardian/pkg/config"
	"github.com/entrhq/guardian/pkg/coordinator"
	"github.com/entrhq/guardian/pkg/logging"
	"github.com/entrhq/guardian/pkg/pageagent"
	"github.com/entrhq/guardian/pkg/rules"
)

const version = "0.1.0"

// Config holds the command line configuration.
type Config struct {
	ConfigPath  string
	PolicyPath  string
	PollSeconds int
	InspectURL  string
	ShowVersion bool
}

func main() {
	cfg := parseFlags()

	if cfg.ShowVersion {
		fmt.Printf("Guardian v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		cancel()
		log.Fatalf("Application error: %v", err)
	}
	cancel()
}

// parseFlags parses command line flags.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ConfigPath, "config", "", "Path to the connection config file (default: ~/.guardian/config.json)")
	flag.StringVar(&cfg.PolicyPath, "policy", "", "Path to a YAML role policy file (default: built-in policy)")
	flag.IntVar(&cfg.PollSeconds, "poll", 30, "Backend connectivity polling interval in seconds")
	flag.StringVar(&cfg.InspectURL, "inspect", "", "Load the given URL and print the extracted page context, then exit")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Guardian - family-safety browser companion core\n\n")
		fmt.Fprintf(os.Stderr, "Usage: guardian [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  guardian                                 # Run the coordinator\n")
		fmt.Fprintf(os.Stderr, "  guardian -policy family-policy.yaml\n")
		fmt.Fprintf(os.Stderr, "  guardian -inspect https://example.com    # Print extracted page context\n")
	}

	flag.Parse()
	return cfg
}

func run(ctx context.Context, cfg *Config) error {
	if cfg.InspectURL != "" {
		return runInspect(cfg.InspectURL)
	}
	return runServe(ctx, cfg)
}

// runServe wires and runs the coordinator until interrupted.
func runServe(ctx context.Context, cfg *Config) error {
	logger, err := logging.NewLogger("main")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	manager, err := config.NewManager(cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// External edits to the config file feed back into the manager and
	// trigger the same re-sync path as in-process mutations.
	watcher, err := config.WatchFile(manager, logger)
	if err != nil {
		logger.Warnf("config file watching unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	policy := rules.DefaultPolicy()
	if cfg.PolicyPath != "" {
		policy, err = rules.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return fmt.Errorf("failed to load policy: %w", err)
		}
	}

	messageBus := bus.New()
	defer messageBus.Close()

	coord := coordinator.New(coordinator.Options{
		Bus:          messageBus,
		Backend:      backend.New(manager, logger),
		Compiler:     rules.NewCompiler(policy),
		Engine:       rules.NewEngine(rules.NewMemoryStore(), logger),
		Config:       manager,
		Logger:       logger,
		PollInterval: time.Duration(cfg.PollSeconds) * time.Second,
	})

	logger.Infof("guardian v%s starting, config at %s", version, manager.Path())
	return coord.Run(ctx)
}

// runInspect loads one live page, runs the extraction pipeline over it, and
// prints the resulting page context as JSON.
func runInspect(url string) error {
	loader, err := browse.NewLoader(browse.LoaderOptions{})
	if err != nil {
		return err
	}
	defer loader.Close()

	snapshot, err := loader.Load(url)
	if err != nil {
		return err
	}

	doc, err := html.Parse(strings.NewReader(snapshot.HTML))
	if err != nil {
		return fmt.Errorf("failed to parse page HTML: %w", err)
	}

	pc := pageagent.Extract(doc, snapshot.URL)

	out, err := json.MarshalIndent(pc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
