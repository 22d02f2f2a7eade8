// Command server runs the ambient world audio synthesizer: it wires the
// world engine, event/snapshot fabric, cooperative tasks, audio engine, and
// HTTP/WebSocket session layer into one running process.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opd-ai/ambientworld/pkg/audioengine"
	"github.com/opd-ai/ambientworld/pkg/config"
	"github.com/opd-ai/ambientworld/pkg/fabric"
	"github.com/opd-ai/ambientworld/pkg/paramblock"
	"github.com/opd-ai/ambientworld/pkg/session"
	"github.com/opd-ai/ambientworld/pkg/tasks"
	"github.com/opd-ai/ambientworld/pkg/worldengine"
	"github.com/opd-ai/ambientworld/pkg/worldstate"
)

func main() {
	port := flag.Int("port", 0, "HTTP/WebSocket listen port (overrides config)")
	tickHz := flag.Int("tick-hz", 0, "simulation tick rate in Hz (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	highLatency := flag.Bool("high-latency", false, "prefer the audio device's default high-latency stream")
	blockFrames := flag.Int("block-frames", 0, "audio stream frames per buffer (overrides config)")
	scene := flag.String("scene", "", "starting scene id (overrides config)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		log.WithError(err).Fatal("invalid log level")
	}
	log.SetLevel(level)

	if err := config.Load(); err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	cfg := config.Get()

	if *port != 0 {
		cfg.Port = *port
	}
	if *tickHz != 0 {
		cfg.TickHz = *tickHz
	}
	if *blockFrames != 0 {
		cfg.AudioBlockFrames = *blockFrames
	}
	if *highLatency {
		cfg.HighLatencyAudio = true
	}
	if *scene != "" {
		cfg.DefaultScene = *scene
	}

	if _, err := config.Watch(func(old, new config.Config) {
		log.WithFields(logrus.Fields{"old_tick_hz": old.TickHz, "new_tick_hz": new.TickHz}).
			Info("configuration changed on disk; restart the process to apply tick-rate changes")
	}); err != nil {
		log.WithError(err).Warn("config hot-reload watcher failed to start")
	}

	table := worldstate.DefaultTable()
	if _, ok := table.Get(cfg.DefaultScene); !ok {
		log.WithField("scene", cfg.DefaultScene).Fatal("unknown default scene")
	}

	engine := worldengine.New(time.Now().UnixNano(),
		worldengine.WithTable(table),
		worldengine.WithScene(cfg.DefaultScene),
		worldengine.WithTickHz(float64(cfg.TickHz)),
	)

	initialParams := worldengine.Project(engine.Snapshot())
	block := paramblock.New(paramblock.Snapshot{
		MasterGain:     float32(initialParams.MasterGain),
		BaseFreqHz:     float32(initialParams.BaseFreqHz),
		DetuneRatio:    float32(initialParams.DetuneRatio),
		Brightness:     float32(initialParams.Brightness),
		Motion:         float32(initialParams.Motion),
		Texture:        float32(initialParams.Texture),
		SparkleImpulse: float32(initialParams.SparkleImpulse),
	})

	audio, err := audioengine.New(audioengine.Config{
		BlockFrames: cfg.AudioBlockFrames,
		HighLatency: cfg.HighLatencyAudio,
		VolumeLimit: cfg.MasterVolumeLimit,
		Log:         log,
	}, block, uint64(time.Now().UnixNano()))
	if err != nil {
		log.WithError(err).Fatal("failed to construct audio engine")
	}
	if err := audio.Start(); err != nil {
		log.WithError(err).Fatal("failed to start audio stream")
	}

	queue := fabric.NewEventQueue(cfg.EventQueueCapacity)
	cell := fabric.NewSnapshotCell(engine.Snapshot())
	cache := fabric.NewSnapshotCache(engine.Snapshot())

	ctx, cancel := context.WithCancel(context.Background())

	go tasks.Tick(ctx, queue, float64(cfg.TickHz), log)
	go tasks.World(ctx, queue, engine, cell)
	go tasks.AudioBridge(ctx, cell, block)
	go tasks.SnapshotCache(ctx, cell, cache, cfg.SnapshotCacheHz)

	limiters := newPerIPLimiter(rate.Limit(20), 40)
	srv := session.NewServer(queue, cell, cache, table, float64(cfg.TickHz), log, limiters.forRequest)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Mux(),
	}

	go func() {
		log.WithField("port", cfg.Port).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	// Cooperative tasks exit at their next suspension point; the audio
	// engine is dropped last so in-flight callbacks always see valid state.
	cancel()
	time.Sleep(50 * time.Millisecond)

	if err := audio.Stop(); err != nil {
		log.WithError(err).Warn("audio engine stop")
	}
}
