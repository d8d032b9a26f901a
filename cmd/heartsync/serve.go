package main

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ayusman/heartsync/internal/app"
	"github.com/ayusman/heartsync/internal/biometric"
	"github.com/ayusman/heartsync/internal/capture"
	"github.com/ayusman/heartsync/internal/config"
	"github.com/ayusman/heartsync/internal/detector"
	"github.com/ayusman/heartsync/internal/features"
	"github.com/ayusman/heartsync/internal/ingest"
	"github.com/ayusman/heartsync/internal/log"
	"github.com/ayusman/heartsync/internal/mixer"
	"github.com/ayusman/heartsync/internal/narration"
	"github.com/ayusman/heartsync/internal/plugin"
	"github.com/ayusman/heartsync/internal/publish"
	"github.com/ayusman/heartsync/internal/server"
	"github.com/ayusman/heartsync/internal/session"
	"github.com/ayusman/heartsync/internal/store"
	"github.com/ayusman/heartsync/internal/tray"
	"github.com/ayusman/heartsync/internal/vision"
)

func serve(parent context.Context, opts *options) error {
	cfg, err := config.Load(config.Resolve(opts.configPath))
	if err != nil {
		return err
	}
	log.Init(cfg.Logging.Level)
	if cfg.Path != "" {
		log.Info("config loaded", "path", cfg.Path)
	} else {
		log.Info("no config file found, using defaults")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	log.Info("session store opened", "path", st.Path())

	cell := &features.Cell{}
	bio := biometric.NewStore(cfg.Scoring.StaleAfter)

	var pipeline *vision.Pipeline
	if !opts.noCamera {
		pipeline = vision.New(
			capture.NewCamera(capture.Options{DeviceID: cfg.Camera.ID, FPS: cfg.Camera.ActiveFPS}),
			capture.NewMotionDetector(cfg.Camera.MotionThreshold),
			newDetector(opts.mockDetector),
			cell,
			vision.Config{ActiveFPS: cfg.Camera.ActiveFPS, IdleFPS: cfg.Camera.IdleFPS},
		)
	}

	narrator, err := newNarrator(cfg.Commentary)
	if err != nil {
		return err
	}

	manager := plugin.NewManager(cfg.Plugins.Dir)
	if err := manager.Discover(); err != nil {
		log.Warn("plugin discovery failed", "dir", cfg.Plugins.Dir, "error", err)
	}
	actuator := plugin.NewActuator(manager, plugin.NewExecutor(cfg.Plugins.Timeout), cfg.Plugins.Bindings)

	appCfg := app.Config{
		Weights:  cfg.Scoring.Weights,
		Interval: cfg.Scoring.Interval,
		Session: session.Config{
			SnapshotEvery:      cfg.Logging.SnapshotEvery,
			CommentaryInterval: cfg.Commentary.Interval,
			ChangeThreshold:    cfg.Commentary.ChangeThreshold,
		},
		Biometrics: bio,
		Cell:       cell,
		Vision:     pipeline,
		Store:      st,
		Narrator:   narrator,
		Mixer:      newMixer(cfg.Audio.StemsDir),
		Actuator:   actuator,
	}

	if cfg.AMQP.URL != "" {
		pub, err := publish.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Warn("state publishing disabled", "error", err)
		} else {
			defer pub.Close()
			appCfg.Publisher = pub
			log.Info("publishing state", "exchange", pub.Exchange())
		}
	}

	a := app.New(appCfg)

	if cfg.MQTT.Broker != "" {
		sub := ingest.New(ingest.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
		}, bio)
		if err := sub.Start(); err != nil {
			log.Warn("mqtt ingest disabled", "error", err)
		}
		defer sub.Close()
	}

	if cfg.Path != "" {
		go func() {
			err := config.Watch(ctx, cfg.Path, func(next *config.Config) {
				if err := a.SetWeights(next.Scoring.Weights); err != nil {
					log.Warn("ignoring reloaded weights", "error", err)
				}
				actuator.SetBindings(next.Plugins.Bindings)
				log.Init(next.Logging.Level)
			})
			if err != nil {
				log.Warn("config watch stopped", "error", err)
			}
		}()
	}

	if err := a.Start(); err != nil {
		return err
	}

	srv := server.New(server.Config{StaticDir: cfg.Server.StaticDir, App: a})
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Run(ctx, cfg.Server.Addr)
	}()

	if opts.tray {
		runTray(ctx, stop, a, cfg.Server.Addr)
	} else {
		select {
		case <-ctx.Done():
		case err := <-srvErr:
			srvErr <- err
		}
	}

	stop()
	log.Info("shutting down")
	if err := a.Stop(); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
	if err := <-srvErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newDetector prefers MediaPipe and falls back to the mock detector.
func newDetector(mock bool) detector.Detector {
	if mock {
		log.Info("using mock landmark detector")
		return detector.NewMockDetector()
	}
	mp, err := detector.NewMediaPipeDetector(detector.DefaultConfig())
	if err != nil {
		log.Warn("MediaPipe not available, using mock detector", "error", err)
		return detector.NewMockDetector()
	}
	log.Info("using MediaPipe landmark detection")
	return mp
}

func newNarrator(cfg config.Commentary) (*narration.Narrator, error) {
	writers := []narration.Writer{}
	if len(cfg.WriterCommand) > 0 {
		writers = append(writers, &narration.CommandWriter{Name: cfg.WriterCommand[0], Args: cfg.WriterCommand[1:]})
	}
	writers = append(writers, narration.NewFallbackWriter())

	chain, err := narration.NewChain(writers...)
	if err != nil {
		return nil, err
	}

	var speaker narration.Speaker
	if len(cfg.SpeakCommand) > 0 {
		speaker = &narration.CommandSpeaker{Name: cfg.SpeakCommand[0], Args: cfg.SpeakCommand[1:]}
	}
	return narration.NewNarrator(chain, speaker), nil
}

// newMixer loads the music stems. Without stems the mixer only tracks
// volumes for the display.
func newMixer(dir string) *mixer.Mixer {
	if dir == "" {
		return mixer.New(nil, nil, nil)
	}
	m, err := mixer.LoadStems(dir)
	if err != nil {
		log.Warn("music disabled", "dir", dir, "error", err)
		return mixer.New(nil, nil, nil)
	}
	log.Info("music stems loaded", "dir", dir)
	return m
}

// runTray shows the tray menu on the calling goroutine until ctx ends or
// the user quits.
func runTray(ctx context.Context, quit context.CancelFunc, a *app.App, addr string) {
	t := tray.New()
	t.OnSession(func(start bool) {
		if start {
			if _, err := a.StartSession(); err != nil {
				log.Warn("tray start failed", "error", err)
			}
			return
		}
		if _, err := a.StopSession(); err != nil && !errors.Is(err, app.ErrNoSession) {
			log.Warn("tray stop failed", "error", err)
		}
	})
	t.OnDisplay(func() { openBrowser(displayURL(addr)) })
	t.OnQuit(quit)
	// Sessions can also be started and stopped over HTTP.
	t.SetSessionActive(a.SessionActive())
	a.OnSession(t.SetSessionActive)
	a.OnState(func(st app.State) {
		t.SetLevel(string(st.Sync.Level), st.Sync.Score)
	})

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
}

func displayURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn("failed to open browser", "url", url, "error", err)
		return
	}
	go cmd.Wait()
}
