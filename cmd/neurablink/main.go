package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/ayusman/neurablink/internal/app"
	"github.com/ayusman/neurablink/internal/config"
	"github.com/ayusman/neurablink/internal/logging"
	"github.com/ayusman/neurablink/internal/plugin"
	"github.com/ayusman/neurablink/internal/server"
	"github.com/ayusman/neurablink/internal/store"
	"github.com/ayusman/neurablink/internal/tray"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "neurablink:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("neurablink", pflag.ContinueOnError)
	configFile := fs.String("config", "", "JSON settings file, watched for changes")
	envFile := fs.String("env-file", ".env", "dotenv file with NEURABLINK_* variables")
	autostart := fs.Bool("start", false, "start detection immediately")
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(config.Sources{File: *configFile, EnvFile: *envFile, Flags: fs})
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	log.Info("NeuraBlink - blink reminder")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(filepath.Join(cfg.DataDir, "neurablink.db"))
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	if n, err := st.Sessions().CloseDangling(context.Background(), time.Now()); err != nil {
		log.WithError(err).Warn("closing dangling sessions")
	} else if n > 0 {
		log.WithField("sessions", n).Info("closed sessions left open by a previous run")
	}

	plugins := plugin.NewManager(cfg.PluginDir, log)
	if err := plugins.Discover(); err != nil {
		log.WithError(err).Warn("plugin discovery failed")
	}

	a, err := app.New(app.Options{Config: *cfg, Store: st, Plugins: plugins, Log: log})
	if err != nil {
		return err
	}
	defer a.Close()

	if *configFile != "" {
		w, err := config.Watch(*configFile, log, func(values map[string]any) {
			reloadSettings(a, values, log)
		})
		if err != nil {
			log.WithError(err).Warn("config file will not be reloaded")
		} else {
			defer w.Close()
		}
	}

	webDir := findWebDir(cfg.DataDir)
	if webDir != "" {
		log.WithField("dir", webDir).Info("serving static files")
	}
	srv := server.New(server.Config{StaticDir: webDir, App: a, Store: st, Log: log})

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(cfg.ListenAddr) }()

	if *autostart {
		if err := a.Start(); err != nil {
			log.WithError(err).Error("starting detection")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tray {
		t := newTray(a, "http://"+cfg.ListenAddr, log)
		go func() {
			select {
			case <-ctx.Done():
			case <-serveErr:
			}
			t.Quit()
		}()
		t.Run()
	} else {
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			if err != nil {
				log.WithError(err).Error("server failed")
			}
		}
	}

	log.Info("shutting down")
	a.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// reloadSettings applies the runtime-mutable values of a rewritten config file.
func reloadSettings(a *app.App, values map[string]any, log logrus.FieldLogger) {
	mutable := make(map[string]any)
	for k, v := range values {
		if config.Mutable(k) {
			mutable[k] = v
		}
	}
	if len(mutable) == 0 {
		return
	}
	if err := a.Update(mutable); err != nil {
		log.WithError(err).Warn("ignoring config file change")
		return
	}
	log.WithField("keys", len(mutable)).Info("config file reloaded")
}

// newTray wires the tray menu to the app in both directions.
func newTray(a *app.App, url string, log logrus.FieldLogger) *tray.Tray {
	t := tray.New(a.Config().Sensitivity)

	t.OnToggle(func(running bool) {
		var err error
		if running {
			err = a.Start()
		} else {
			err = a.Stop()
		}
		if err != nil {
			log.WithError(err).Warn("tray toggle")
		}
	})
	t.OnSensitivity(func(level int) {
		if err := a.SetSensitivity(level); err != nil {
			log.WithError(err).Warn("tray sensitivity")
			return
		}
		t.SetSensitivity(level)
	})
	t.OnSettings(func() {
		if err := openBrowser(url); err != nil {
			log.WithError(err).Warn("opening settings")
		}
	})

	a.Subscribe(func(ev app.Event) {
		switch ev.Type {
		case app.EventStarted:
			t.SetRunning(true)
		case app.EventStopped:
			t.SetRunning(false)
		case app.EventBlink:
			t.SetLastBlink(ev.At)
		}
	})
	return t
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and dataDir/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
