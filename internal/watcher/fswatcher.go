// Package watcher bridges raw filesystem notifications to the entry
// manager: it debounces bursty events per path, classifies each settled
// path against the configured sync directories and the ignore registry,
// and drives the matching entrymgr operation followed by a metadata
// broadcast.
package watcher

import (
	"github.com/fsnotify/fsnotify"
)

// FsWatcher abstracts filesystem event monitoring so tests can inject a
// fake implementation instead of touching the real filesystem.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

// fsnotifyWrapper adapts *fsnotify.Watcher to FsWatcher; fsnotify exposes
// Events and Errors as public struct fields rather than methods.
type fsnotifyWrapper struct {
	w *fsnotify.Watcher
}

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWrapper{w: w}, nil
}

func (fw *fsnotifyWrapper) Add(name string) error         { return fw.w.Add(name) }
func (fw *fsnotifyWrapper) Remove(name string) error      { return fw.w.Remove(name) }
func (fw *fsnotifyWrapper) Close() error                  { return fw.w.Close() }
func (fw *fsnotifyWrapper) Events() <-chan fsnotify.Event { return fw.w.Events }
func (fw *fsnotifyWrapper) Errors() <-chan error          { return fw.w.Errors }
