package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hourglass-app/hourglass/internal/api"
	"github.com/hourglass-app/hourglass/internal/config"
	"github.com/hourglass-app/hourglass/internal/daemon"
	"github.com/hourglass-app/hourglass/internal/engine"
	"github.com/hourglass-app/hourglass/internal/idle"
	"github.com/hourglass-app/hourglass/internal/query"
	"github.com/hourglass-app/hourglass/internal/reporter"
	"github.com/hourglass-app/hourglass/internal/settings"
	"github.com/hourglass-app/hourglass/internal/store"
	"github.com/hourglass-app/hourglass/pkg/probe"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "start":
		startDaemon(false)
	case "serve":
		startDaemon(true)
	case "stop":
		stopDaemon()
	case "status":
		showStatus()
	case "report":
		generateReport()
	case "clear":
		clearDatabase()
	case "version":
		fmt.Printf("hourglassd version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`hourglassd - Local activity monitoring daemon

Usage:
  hourglassd <command> [options]

Commands:
  start              Start the monitoring daemon
  serve              Start daemon with local HTTP API
  stop               Stop the monitoring daemon
  status             Show daemon status and current idle/window state
  report [period]    Generate activity report (period: day, week, month)
  clear              Delete all recorded activity data
  version            Show version information
  help               Show this help message

Examples:
  hourglassd serve
  hourglassd status
  hourglassd report week
  hourglassd report day --json
  hourglassd stop

Environment Variables:
  HOURGLASS_DB_PATH           Database file path
  HOURGLASS_TICK_INTERVAL     Idle sampling interval in seconds
  HOURGLASS_FLUSH_GRACE       Shutdown flush window in seconds
  HOURGLASS_PROMPT_TIMEOUT    Idle disposition prompt timeout in seconds
  HOURGLASS_PID_FILE          PID file path
  HOURGLASS_LOG_FILE          Daemon log file path
  HOURGLASS_WEB_HOST          API host
  HOURGLASS_WEB_PORT          API port

Version: %s
`, version)
}

func startDaemon(withWeb bool) {
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}
	if running {
		log.Fatalf("Daemon is already running (PID: %d)", pid)
	}

	if os.Getenv("HOURGLASS_DAEMON_CHILD") != "1" {
		daemonize(cfg, withWeb)
		return
	}

	runDaemon(cfg, dm, withWeb)
}

func runDaemon(cfg *config.Config, dm *daemon.Daemon, withWeb bool) {
	logFile, err := os.OpenFile(cfg.Daemon.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		log.SetOutput(logFile)
		defer logFile.Close()
	}

	db, err := store.Connect(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	osProbe, probeErr := probe.Resolve()
	if probeErr != nil {
		log.Printf("OS probe unavailable, running degraded: %v", probeErr)
	}

	if err := dm.WritePID(); err != nil {
		log.Fatalf("Failed to write PID file: %v", err)
	}
	defer dm.RemovePID()

	repo := store.NewRepository(db)
	writer := store.NewAsyncWriter(repo, cfg.Engine.WriteQueueSize)

	hub := api.NewHub()
	prompter := api.NewHubPrompter(hub, cfg.Engine.PromptTimeout)

	eng := engine.New(engine.Config{
		Writer:     writer,
		Settings:   settings.NewService(repo),
		Probe:      osProbe,
		ProbeError: probeErr,
		Prompter:   prompter,
		OnOutcome: func(outcome idle.Outcome) {
			hub.Broadcast(api.Event{Name: "idle-outcome", Data: outcome})
		},
		TickInterval: cfg.Engine.TickInterval,
		FlushGrace:   cfg.Engine.FlushGrace,
	})

	if err := eng.Start(); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	var webServer *api.Server
	if withWeb {
		facade := query.NewFacade(repo, eng)
		rep := reporter.New(repo)
		webServer = api.NewServer(cfg.WebAddress(), eng, facade, rep, hub, prompter)

		go func() {
			if err := webServer.Start(); err != nil && err != http.ErrServerClosed {
				log.Printf("API server error: %v", err)
			}
		}()
		log.Printf("API available at: http://%s", webServer.GetAddress())
	}

	log.Println("Starting hourglass daemon...")
	log.Printf("Configuration:\n%s", cfg.String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if webServer != nil {
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down API server: %v", err)
		}
	}

	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down engine: %v", err)
	}

	log.Println("Daemon stopped successfully")
}

func stopDaemon() {
	cfg := config.New()
	dm := daemon.New(cfg.Daemon.PIDFile)

	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}

	if !running {
		fmt.Println("Daemon is not running")
		return
	}

	fmt.Printf("Stopping daemon (PID: %d)...\n", pid)
	if err := dm.Stop(); err != nil {
		log.Fatalf("Failed to stop daemon: %v", err)
	}

	fmt.Println("Daemon stopped successfully")
}

func showStatus() {
	cfg := config.New()
	dm := daemon.New(cfg.Daemon.PIDFile)

	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}

	if !running {
		fmt.Println("Status: Not running")
	} else {
		fmt.Printf("Status: Running (PID: %d)\n", pid)
		fmt.Printf("Database: %s\n", cfg.Database.Path)
		fmt.Printf("API: http://%s\n", cfg.WebAddress())
	}

	// Probe the OS directly even when the daemon is down.
	osProbe, err := probe.Resolve()
	if err != nil {
		fmt.Printf("\nCould not query display server: %v\n", err)
		return
	}
	defer osProbe.Close()

	if info, err := osProbe.FocusedWindow(); err == nil && info != nil {
		fmt.Printf("\nCurrent Window:\n")
		fmt.Printf("  App: %s\n", info.AppName)
		fmt.Printf("  Title: %s\n", info.Title)
		if info.ProcessName != "" {
			fmt.Printf("  Process: %s (PID %d)\n", info.ProcessName, info.PID)
		}
	}

	if idleSeconds, err := osProbe.IdleSeconds(); err == nil {
		fmt.Printf("\nSystem State:\n")
		fmt.Printf("  Idle Time: %ds\n", idleSeconds)
	}
}

func generateReport() {
	periodType := "day"
	if len(os.Args) > 2 {
		periodType = os.Args[2]
	}

	cfg := config.New()

	db, err := store.Connect(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := store.NewRepository(db)
	rep := reporter.New(repo)

	jsonOutput := false
	if len(os.Args) > 3 && os.Args[3] == "--json" {
		jsonOutput = true
	}

	report, err := rep.GenerateReport(periodType)
	if err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}

	if jsonOutput {
		jsonStr, err := rep.FormatReportJSON(report)
		if err != nil {
			log.Fatalf("Failed to format JSON: %v", err)
		}
		fmt.Println(jsonStr)
	} else {
		fmt.Println(rep.FormatReportText(report))
	}
}

func clearDatabase() {
	cfg := config.New()

	fmt.Print("This will delete all recorded activity data. Are you sure? (yes/no): ")
	var response string
	fmt.Scanln(&response)

	if response != "yes" && response != "y" {
		fmt.Println("Operation cancelled")
		return
	}

	db, err := store.Connect(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := store.NewRepository(db)
	if err := repo.DeleteAllPeriods(); err != nil {
		log.Fatalf("Failed to delete activity periods: %v", err)
	}
	if err := repo.DeleteAllWindowActivities(); err != nil {
		log.Fatalf("Failed to delete window activities: %v", err)
	}

	fmt.Println("All activity data cleared")
}

func daemonize(cfg *config.Config, withWeb bool) {
	env := os.Environ()
	env = append(env, "HOURGLASS_DAEMON_CHILD=1")

	procAttr := &os.ProcAttr{
		Env:   env,
		Files: []*os.File{nil, nil, nil}, // stdin, stdout, stderr detached
		Sys: &syscall.SysProcAttr{
			Setsid: true,
		},
	}

	process, err := os.StartProcess(os.Args[0], os.Args, procAttr)
	if err != nil {
		log.Fatalf("Failed to start daemon process: %v", err)
	}

	fmt.Printf("Daemon started successfully (PID: %d)\n", process.Pid)
	if withWeb {
		fmt.Printf("API available at: http://%s\n", cfg.WebAddress())
	}
	fmt.Printf("Logs: %s\n", cfg.Daemon.LogFile)
}
