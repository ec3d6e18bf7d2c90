package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/dockpage/dockpage/collector"
	"github.com/dockpage/dockpage/config"
	"github.com/dockpage/dockpage/internal/cron"
	"github.com/dockpage/dockpage/loggers/cli"
	"github.com/dockpage/dockpage/page"
	"github.com/dockpage/dockpage/remote"
	"github.com/dockpage/dockpage/system"
)

var (
	debug       = false
	showVersion = false
)

var root = &cobra.Command{
	Use:   "dockpage",
	Short: "publishes running container stats to a Notion page",
	Long:  "Dockpage samples CPU and memory usage of every running container on the host and keeps a single stats block on a Notion page refreshed with the latest reading.",
	Run:   rootCmdRun,
}

func init() {
	root.PersistentFlags().BoolVar(&showVersion, "version", false, "show the version and exit")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "pass in order to run dockpage in debug mode")
}

// Execute runs the root command and exits with a non-zero status when it
// errors out.
func Execute() {
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to execute command: %s\n", err)
		os.Exit(1)
	}
}

func rootCmdRun(*cobra.Command, []string) {
	if showVersion {
		fmt.Println(system.Version)
		os.Exit(0)
	}

	log.SetHandler(cli.Default)
	log.SetLevel(log.InfoLevel)

	c, err := config.FromEnv()
	if err != nil {
		// Nothing at all should be attempted against either external service
		// without credentials, so this exits before any scheduling begins.
		log.WithField("error", err).Fatal("failed to load configuration from the environment")
		return
	}
	if debug {
		c.Debug = true
	}
	config.Set(c)

	if c.Debug {
		log.SetLevel(log.DebugLevel)
		log.Debug("running in debug mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := collector.Ready(ctx, c.DockerWait); err != nil {
		log.WithField("error", err).Fatal("failed to reach the docker socket")
		return
	}
	docker, err := collector.DockerClient()
	if err != nil {
		log.WithField("error", err).Fatal("failed to create docker client")
		return
	}

	client := remote.New(c.Token,
		remote.WithSpacing(c.RequestSpacing),
		remote.WithRetryFallback(c.RetryFallback),
	)
	sync := page.New(client, c.PageID)

	// Best effort cleanup of blocks left behind by a previous process: the
	// in-memory block handle does not survive restarts.
	if err := sync.Reconcile(ctx); err != nil {
		log.WithField("error", err).Warn("failed to reconcile orphaned stats blocks, continuing")
	}

	sched, err := cron.Scheduler(ctx, collector.New(docker), sync)
	if err != nil {
		log.WithField("error", err).Fatal("failed to configure refresh scheduler")
		return
	}
	sched.StartAsync()
	log.WithFields(log.Fields{
		"interval": c.RefreshInterval,
		"page":     c.PageID,
	}).Info("dockpage started, publishing container stats")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down...")
	sched.Stop()
}
