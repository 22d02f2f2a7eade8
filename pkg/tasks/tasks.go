// Package tasks implements the four long-lived cooperative goroutines that
// connect the event queue, the world engine, the shared parameter block, and
// the snapshot cache. Every task exits on its context's cancellation at its
// next suspension point.
package tasks

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ambientworld/pkg/fabric"
	"github.com/opd-ai/ambientworld/pkg/paramblock"
	"github.com/opd-ai/ambientworld/pkg/worldengine"
)

// Tick runs the tick task: every 1/tickHz seconds, it try-sends a Tick event
// into queue. A full queue is logged at debug and the tick is dropped —
// ticks are idempotent-ish in aggregate and a dropped tick just delays decay
// slightly.
func Tick(ctx context.Context, queue *fabric.EventQueue, tickHz float64, log *logrus.Logger) {
	if tickHz <= 0 {
		tickHz = 20
	}
	interval := time.Duration(float64(time.Second) / tickHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := queue.TrySend(worldengine.TickEvent()); err != nil {
				log.WithError(err).Debug("tasks: tick dropped, queue full")
			}
		}
	}
}

// World runs the world task: it is the exclusive owner of the engine and the
// exclusive writer of the snapshot cell. It awaits events, applies them, and
// publishes the resulting snapshot.
func World(ctx context.Context, queue *fabric.EventQueue, engine *worldengine.Engine, cell *fabric.SnapshotCell) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-queue.Receive():
			snap := engine.Apply(ev)
			cell.Publish(snap)
		}
	}
}

// AudioBridge runs the audio-parameter bridge task: it awaits a snapshot
// change, projects it to AudioParams, and writes all seven fields into the
// shared parameter block.
func AudioBridge(ctx context.Context, cell *fabric.SnapshotCell, block *paramblock.Block) {
	cancel := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(cancel)
	}()

	for {
		snap, ok := cell.AwaitChange(cancel)
		if !ok {
			return
		}
		params := worldengine.Project(snap)
		block.StoreAll(paramblock.Snapshot{
			MasterGain:     float32(clampFinite(params.MasterGain)),
			BaseFreqHz:     float32(clampFinite(params.BaseFreqHz)),
			DetuneRatio:    float32(clampFinite(params.DetuneRatio)),
			Brightness:     float32(clampFinite(params.Brightness)),
			Motion:         float32(clampFinite(params.Motion)),
			Texture:        float32(clampFinite(params.Texture)),
			SparkleImpulse: float32(clampFinite(params.SparkleImpulse)),
		})
	}
}

// SnapshotCache runs the snapshot cache task: on a fixed cadence (cacheHz)
// it copies the cell's latest snapshot into the cache for synchronous HTTP
// reads. Unlike AudioBridge, this task does not need to react to every
// change — HTTP polling is relatively infrequent and cacheHz decouples the
// cache's refresh rate from the world tick rate.
func SnapshotCache(ctx context.Context, cell *fabric.SnapshotCell, cache *fabric.SnapshotCache, cacheHz float64) {
	if cacheHz <= 0 {
		cacheHz = 10
	}
	interval := time.Duration(float64(time.Second) / cacheHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cache.Refresh(cell.Load())
		}
	}
}

// clampFinite guards a projected value against non-finite propagation into
// the shared parameter block — internal errors here are self-healing and
// never surfaced, per the error taxonomy.
func clampFinite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
