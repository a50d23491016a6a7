package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Reuben-Percival/parut/internal/config"
	parut_http "github.com/Reuben-Percival/parut/internal/http"
	"github.com/Reuben-Percival/parut/internal/log"
	"github.com/Reuben-Percival/parut/internal/notify"
	"github.com/Reuben-Percival/parut/internal/paru"
	"github.com/Reuben-Percival/parut/pkg/models"
	"github.com/Reuben-Percival/parut/pkg/queue"
	"github.com/Reuben-Percival/parut/pkg/service"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("config", "", "path to a parut config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task scheduler with the HTTP control surface",
		Run: func(cmd *cobra.Command, args []string) {
			initConfig(cmd)
			q, worker := buildWorker()
			worker.Start()
			if err := parut_http.StartServer(config.Current().HTTPPort, q, outputLimit); err != nil {
				log.GetLogger().Errorf("Server stopped: %v", err)
				os.Exit(1)
			}
		},
	}

	installCmd := &cobra.Command{
		Use:   "install [package]",
		Short: "Install a package through paru",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			initConfig(cmd)
			runTask(models.InstallKind, args[0])
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove [package]",
		Short: "Remove a package and its unneeded dependencies",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			initConfig(cmd)
			runTask(models.RemoveKind, args[0])
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update [package]",
		Short: "Update one package, or the whole system when no package is given",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			initConfig(cmd)
			if len(args) == 1 {
				runTask(models.UpdatePackageKind, args[0])
				return
			}
			runTask(models.UpdateSystemKind, models.SystemTarget)
		},
	}

	cleanCacheCmd := &cobra.Command{
		Use:   "clean-cache",
		Short: "Remove uninstalled packages from the cache",
		Run: func(cmd *cobra.Command, args []string) {
			initConfig(cmd)
			runTask(models.CleanCacheKind, models.SystemTarget)
		},
	}

	removeOrphansCmd := &cobra.Command{
		Use:   "remove-orphans",
		Short: "Remove orphaned packages",
		Run: func(cmd *cobra.Command, args []string) {
			initConfig(cmd)
			runTask(models.RemoveOrphansKind, models.SystemTarget)
		},
	}

	estimateCmd := &cobra.Command{
		Use:   "estimate",
		Short: "Show how much disk a cleanup could reclaim",
		Run: func(cmd *cobra.Command, args []string) {
			initConfig(cmd)
			est := paru.EstimateCleanup()
			fmt.Fprintf(os.Stdout, "Pacman cache: %d bytes\n", est.PacmanCacheBytes)
			fmt.Fprintf(os.Stdout, "Paru clone cache: %d bytes\n", est.ParuCloneBytes)
			fmt.Fprintf(os.Stdout, "Orphaned packages: %d\n", est.OrphanCount)
		},
	}

	rootCmd.AddCommand(serveCmd, installCmd, removeCmd, updateCmd, cleanCacheCmd, removeOrphansCmd, estimateCmd)
}

func initConfig(cmd *cobra.Command) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving config flag: %v", err)
		os.Exit(1)
	}
	if err := config.Init(path); err != nil {
		log.GetLogger().Errorf("Failed to load config: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	log.SetLevel(config.Current().LogLevel)
}

func outputLimit() int {
	return config.Current().TaskOutputLimit
}

func buildWorker() (*queue.TaskQueue, *service.Worker) {
	logger := log.GetLogger()
	q := queue.NewTaskQueue()
	runner := paru.NewRunner(config.Current, logger)
	notifier := notify.NewDispatcher(logger)
	cfg := func() service.Config {
		return config.Current().Service()
	}
	return q, service.NewWorker(q, runner, cfg, notifier, logger)
}

// runTask enqueues one operation, runs the scheduler in-process and streams
// the task's output until it reaches a terminal status. Ctrl+C requests
// cancellation instead of tearing the child down uncleanly.
func runTask(kind models.TaskKind, target string) {
	q, worker := buildWorker()
	id := q.Add(kind, target)
	worker.Start()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupts
		if !q.RequestCancel(id, outputLimit()) {
			q.CancelQueued(id)
		}
	}()

	// seen counts lines ever appended, not the buffer length, so lines the
	// cap dropped between polls are neither reprinted nor double counted.
	seen := 0
	for {
		task, ok := q.Get(id)
		if !ok {
			fmt.Fprintf(os.Stdout, "Task canceled before it started.\n")
			return
		}
		fresh := task.OutputTotal - seen
		if fresh > len(task.Output) {
			fresh = len(task.Output)
		}
		if fresh > 0 {
			for _, line := range task.Output[len(task.Output)-fresh:] {
				fmt.Fprintln(os.Stdout, line)
			}
		}
		seen = task.OutputTotal

		if task.Status.Terminal() {
			switch task.Status {
			case models.FailedTaskStatus:
				fmt.Fprintf(os.Stderr, "Error: %s\n", task.ErrorMsg)
				os.Exit(1)
			case models.CanceledTaskStatus:
				fmt.Fprintf(os.Stdout, "Canceled.\n")
			default:
				fmt.Fprintf(os.Stdout, "Done.\n")
			}
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}
