package watcher

import (
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
)

func TestDebounceBuffer_RecordThenImmediateSweepYieldsNothing(t *testing.T) {
	d := newDebounceBuffer()
	d.Record(fsnotify.Event{Name: "/home/shared/a.txt", Op: fsnotify.Write})

	assert.Empty(t, d.Sweep())
}

func TestDebounceBuffer_SweepAfterQuietPeriodYieldsEvent(t *testing.T) {
	d := newDebounceBuffer()
	d.buckets["/home/shared/a.txt"] = bucket{
		event:   fsnotify.Event{Name: "/home/shared/a.txt", Op: fsnotify.Write},
		updated: time.Now().Add(-debounceInterval * 2),
	}

	got := d.Sweep()
	assert.Len(t, got, 1)
	assert.Equal(t, "/home/shared/a.txt", got[0].Name)

	assert.Empty(t, d.Sweep(), "settled events must be cleared after being returned")
}

func TestDebounceBuffer_RepeatedRecordResetsQuietTimer(t *testing.T) {
	d := newDebounceBuffer()
	d.buckets["/home/shared/a.txt"] = bucket{
		event:   fsnotify.Event{Name: "/home/shared/a.txt", Op: fsnotify.Write},
		updated: time.Now().Add(-debounceInterval * 2),
	}

	d.Record(fsnotify.Event{Name: "/home/shared/a.txt", Op: fsnotify.Write})

	assert.Empty(t, d.Sweep(), "a fresh Record must reset the path's quiet timer")
}

func TestDebounceBuffer_SweepOnlyReturnsSettledPaths(t *testing.T) {
	d := newDebounceBuffer()
	d.buckets["/home/shared/old.txt"] = bucket{
		event:   fsnotify.Event{Name: "/home/shared/old.txt", Op: fsnotify.Write},
		updated: time.Now().Add(-debounceInterval * 2),
	}
	d.Record(fsnotify.Event{Name: "/home/shared/new.txt", Op: fsnotify.Create})

	got := d.Sweep()
	assert.Len(t, got, 1)
	assert.Equal(t, "/home/shared/old.txt", got[0].Name)
}
