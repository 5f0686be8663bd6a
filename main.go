package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"netrisk/internal/api"
	"netrisk/internal/capture"
	"netrisk/internal/config"
	"netrisk/internal/logging"
	"netrisk/internal/metrics"
	"netrisk/internal/normalize"
	"netrisk/internal/risk"
	"netrisk/internal/session"
	"netrisk/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	interfaceName := flag.String("i", "", "Network interface to capture from (e.g., eth0, wlan0)")
	listen := flag.String("listen", "", "HTTP listen address (default 127.0.0.1:8000)")
	modelPath := flag.String("model", "", "Risk model artifact (.json forest or .onnx)")
	pcapFile := flag.String("pcap", "", "Replay a pcap file instead of capturing live")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	autostart := flag.Bool("autostart", false, "Start capturing immediately")
	dashboard := flag.Bool("tui", false, "Show the terminal dashboard for this process")
	watch := flag.String("watch", "", "Show the dashboard for a remote server, e.g. http://127.0.0.1:8000")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags override the file
	if *interfaceName != "" {
		cfg.Capture.Interface = *interfaceName
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *modelPath != "" {
		cfg.Risk.ModelPath = *modelPath
	}
	if *pcapFile != "" {
		cfg.Capture.PcapFile = *pcapFile
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *autostart {
		cfg.Capture.AutoStart = true
	}

	if *watch != "" {
		if err := runDashboard(tui.NewDashboardModel(api.NewClient(*watch), cfg.Capture.Interface, cfg.ReportDir)); err != nil {
			fmt.Fprintf(os.Stderr, "dashboard: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *dashboard {
		// keep the terminal for the dashboard
		cfg.Log.Quiet = true
		if cfg.Log.File == "" {
			cfg.Log.File = "netrisk.log"
		}
	}

	if err := run(cfg, *dashboard); err != nil {
		fmt.Fprintf(os.Stderr, "netrisk: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, dashboard bool) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	m := metrics.New()

	classifier, variant := risk.Load(cfg.Risk, log.Named("risk"))
	if trained, ok := classifier.(*risk.Trained); ok {
		m.ObserveFallbacks(trained.Fallbacks)
	}

	ctl := session.New(session.Options{
		Facility:    capture.NewPcap(cfg.Capture, log.Named("capture")),
		Normalizer:  normalize.New(classifier),
		StopTimeout: cfg.Capture.StopTimeout,
		Analysis:    cfg.Analysis,
		Metrics:     m,
		Logger:      log.Named("session"),
	})

	srv := api.NewServer(api.Options{
		Controller:  ctl,
		Metrics:     m,
		Logger:      log.Named("api"),
		CORSOrigins: cfg.CORSOrigins,
		Classifier:  string(variant),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("netrisk starting",
		zap.String("listen", cfg.Listen),
		zap.String("interface", cfg.Capture.Interface),
		zap.String("classifier", risk.Describe(classifier)))

	if cfg.Capture.AutoStart {
		ctl.Start(cfg.Capture.Interface)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx, cfg.Listen) }()

	served := false
	if dashboard {
		err = runDashboard(tui.NewDashboardModel(tui.ControllerSource{Controller: ctl}, cfg.Capture.Interface, cfg.ReportDir))
		stop()
	} else {
		select {
		case err = <-errCh:
			served = true
		case <-ctx.Done():
		}
	}

	ctl.Stop()
	if !served {
		if serr := <-errCh; err == nil {
			err = serr
		}
	}
	if err != nil {
		return err
	}
	log.Info("netrisk stopped")
	return nil
}

func runDashboard(model tui.DashboardModel) error {
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
