package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cilium/ebpf/ringbuf"
	"golang.org/x/sync/errgroup"

	"sockettrace/tracklog"
	"sockettrace/tracking"
)

// Reader is the subset of *ringbuf.Reader the Feed needs, so tests can
// substitute a fake without a real BPF map.
type Reader interface {
	Read() (ringbuf.Record, error)
	Close() error
}

// Feed pairs a ring-buffer drain loop with the registry's periodic tick
// loop under one errgroup, the same shape as the teacher's
// collector.Run pairing consume() with its stats-ticker goroutine in
// xdpcollector/xdp_collector_methods.go.
type Feed struct {
	rd       Reader
	registry *tracking.Registry
	tick     time.Duration
}

// NewFeed returns a Feed that decodes records from rd and dispatches
// them into registry, ticking registry every tickInterval.
func NewFeed(rd Reader, registry *tracking.Registry, tickInterval time.Duration) *Feed {
	return &Feed{rd: rd, registry: registry, tick: tickInterval}
}

// Run drains the ring buffer and ticks the registry until ctx is
// canceled or the ring buffer is closed.
func (f *Feed) Run(ctx context.Context) error {
	// consume returns nil when the ring buffer closes, which errgroup does
	// not treat as a reason to cancel; cancel explicitly so tickLoop stops.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return f.consume(gctx)
	})
	g.Go(func() error { return f.tickLoop(gctx) })

	return g.Wait()
}

func (f *Feed) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		rec, err := f.rd.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			tracklog.Errorf("ingest: ringbuf read: %v", err)
			continue
		}

		if err := f.dispatch(rec.RawSample); err != nil {
			tracklog.Errorf("ingest: %v", err)
		}
	}
}

func (f *Feed) dispatch(raw []byte) error {
	if len(raw) < 1 {
		return fmt.Errorf("empty record")
	}
	kind, body := recordKind(raw[0]), raw[1:]

	switch kind {
	case recordKindOpen:
		info, err := DecodeOpen(body)
		if err != nil {
			return err
		}
		f.registry.AcceptConnOpenEvent(info)
	case recordKindClose:
		info, err := DecodeClose(body)
		if err != nil {
			return err
		}
		f.registry.AcceptConnCloseEvent(info)
	case recordKindData:
		event, err := DecodeData(body)
		if err != nil {
			return err
		}
		f.registry.AcceptDataEvent(event)
	default:
		return fmt.Errorf("unknown record kind %d", kind)
	}
	return nil
}

func (f *Feed) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.registry.IterationTick()
		}
	}
}
