package watcher

import (
	"testing"
	"time"
)

func TestStartStopDoesNotBlock(t *testing.T) {
	// A long poll interval guarantees tick() never fires before Stop, so
	// this exercises the goroutine lifecycle without needing a live store.
	w := New(nil, time.Hour)
	w.Start()
	w.Stop()
}
