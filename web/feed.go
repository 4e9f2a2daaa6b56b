package web

import (
	"context"
	"time"

	"guestbook/logger"
	"guestbook/models"
)

// Feed polls the store for records newer than the last one seen and pushes
// them to the hub. Polling keeps the HTTP side read-only: the relay remains
// the sole writer and the store is the only meeting point.
type Feed struct {
	reader   RecordReader
	hub      *Hub
	interval time.Duration
	lastTS   string
	// Ids already broadcast at lastTS. Since is inclusive of the cursor
	// timestamp, so a poll limit landing inside a timestamp tie loses
	// nothing; the re-read tail is filtered here instead.
	seen map[string]struct{}
}

func NewFeed(reader RecordReader, hub *Hub, interval time.Duration) *Feed {
	return &Feed{
		reader:   reader,
		hub:      hub,
		interval: interval,
		// Only stream records created after startup.
		lastTS: time.Now().Format(models.TimestampLayout),
		seen:   make(map[string]struct{}),
	}
}

// Run polls until ctx is cancelled. Poll errors are logged and polling
// continues.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.poll(ctx)
		}
	}
}

func (f *Feed) poll(ctx context.Context) {
	recs, err := f.reader.Since(ctx, f.lastTS, recentLimit)
	if err != nil {
		logger.Error("feed poll failed", err)
		return
	}
	for _, rec := range recs {
		if rec.Timestamp == f.lastTS {
			if _, ok := f.seen[rec.MessageID]; ok {
				continue
			}
		} else if rec.Timestamp > f.lastTS {
			f.lastTS = rec.Timestamp
			f.seen = make(map[string]struct{})
		}
		f.seen[rec.MessageID] = struct{}{}
		f.hub.Broadcast(rec)
	}
}
