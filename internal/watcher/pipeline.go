package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lansync/lansyncd/internal/config"
	"github.com/lansync/lansyncd/internal/control"
	"github.com/lansync/lansyncd/internal/entrymgr"
	"github.com/lansync/lansyncd/internal/fsutil"
	"github.com/lansync/lansyncd/internal/registry"
	"github.com/lansync/lansyncd/internal/transport"
)

// ErrHomePathChanged is returned from the config reload side loop when a
// reloaded config names a different home_path than the one the daemon
// started with. There is no safe way to migrate a running sync tree, so
// this is always fatal.
var ErrHomePathChanged = fmt.Errorf("watcher: home_path changed, restart required")

// Pipeline subscribes to the home tree and the configuration file,
// debounces raw events, classifies each settled path, and drives the
// matching entry manager operation followed by a metadata broadcast.
type Pipeline struct {
	homePath   string
	configPath string

	manager  *entrymgr.Manager
	sender   *transport.Sender
	registry *registry.Registry
	events   *control.Broadcaster
	logger   *slog.Logger

	watcherFactory func() (FsWatcher, error)
	loadConfig     func() (*config.Config, error)

	debounce *debounceBuffer
}

// New constructs a Pipeline rooted at homePath, watching configPath for
// configuration changes. loadConfig re-reads and validates the config file
// on demand. reg is consulted to broadcast a resync Syn to every known peer
// whenever the sync directory set changes underneath the daemon. events may
// be nil, in which case directory add/remove occurrences are simply not
// published anywhere.
func New(homePath, configPath string, manager *entrymgr.Manager, sender *transport.Sender, reg *registry.Registry, events *control.Broadcaster, loadConfig func() (*config.Config, error), logger *slog.Logger) *Pipeline {
	return &Pipeline{
		homePath:       homePath,
		configPath:     configPath,
		manager:        manager,
		sender:         sender,
		registry:       reg,
		events:         events,
		logger:         logger,
		watcherFactory: newFsnotifyWatcher,
		loadConfig:     loadConfig,
		debounce:       newDebounceBuffer(),
	}
}

func (p *Pipeline) publish(kind control.EventKind, detail string) {
	if p.events == nil {
		return
	}

	p.events.Publish(control.Event{Kind: kind, Detail: detail, Timestamp: time.Now()})
}

// Run watches the home tree and the config file until ctx is cancelled. A
// home_path change observed on reload is fatal and returned as an error;
// every other config change is applied in place.
func (p *Pipeline) Run(ctx context.Context) error {
	watcher, err := p.watcherFactory()
	if err != nil {
		return fmt.Errorf("watcher: creating filesystem watcher: %w", err)
	}
	defer watcher.Close()

	if err := p.addWatchesRecursive(watcher, p.homePath); err != nil {
		return fmt.Errorf("watcher: adding initial watches: %w", err)
	}

	if err := watcher.Add(filepath.Dir(p.configPath)); err != nil {
		p.logger.Warn("watcher: could not watch config directory", slog.Any("error", err))
	}

	ticker := time.NewTicker(debounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			p.logger.Warn("watcher: fsnotify error", slog.Any("error", err))
		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			p.debounce.Record(ev)
		case <-ticker.C:
			for _, ev := range p.debounce.Sweep() {
				if err := p.handleSettledEvent(ctx, watcher, ev); err != nil {
					if errors.Is(err, ErrHomePathChanged) {
						return err
					}

					p.logger.Warn("watcher: handling event", slog.String("path", ev.Name), slog.Any("error", err))
				}
			}
		}
	}
}

func (p *Pipeline) handleSettledEvent(ctx context.Context, watcher FsWatcher, ev fsnotify.Event) error {
	if ev.Name == p.configPath {
		return p.handleConfigEvent(ctx)
	}

	class, key := classify(p.homePath, ev.Name, syncDirSet(p.manager.ListSyncDirs()), p.manager.Ignores(), ev.Op&fsnotify.Remove == 0 && isDirectory(ev.Name))
	if class != ValidEntry {
		return nil
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		return p.handleCreateOrModify(ctx, watcher, ev.Name, key)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return p.handleRemove(ctx, key)
	}

	return nil
}

func isDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (p *Pipeline) handleCreateOrModify(ctx context.Context, watcher FsWatcher, absPath, key string) error {
	info, err := os.Stat(absPath)
	if err != nil {
		// Vanished between the fsnotify event and processing; treat as a
		// removal to keep the entry store consistent.
		return p.handleRemove(ctx, key)
	}

	if info.IsDir() {
		if err := watcher.Add(absPath); err != nil {
			p.logger.Warn("watcher: failed to add watch", slog.String("path", absPath), slog.Any("error", err))
		}

		return p.handleDirectoryCreated(ctx, absPath, key)
	}

	hash, err := fsutil.HashFile(absPath)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", absPath, err)
	}

	rec, err := p.upsertFile(ctx, key, hash)
	if err != nil {
		return err
	}

	p.sender.EnqueueMetadata(rec)

	if filepath.Base(absPath) == ".gitignore" {
		dirName, rel, _ := splitKey(key)
		prefix := dirPrefixOf(dirName, filepath.Dir(rel))

		if err := p.manager.InsertGitignore(prefix, absPath); err != nil {
			p.logger.Warn("watcher: registering .gitignore", slog.String("path", absPath), slog.Any("error", err))
		}
	}

	return nil
}

// upsertFile records hash under key, incrementing the local version
// counter via EntryModified if a record already exists there, or starting
// a fresh one at version{local: 0} via EntryCreated otherwise.
func (p *Pipeline) upsertFile(ctx context.Context, key string, hash fsutil.Hash) (entrymgr.Record, error) {
	current, found, err := p.manager.Get(ctx, key)
	if err != nil {
		return entrymgr.Record{}, err
	}

	if found {
		if current.Hash == hash {
			return current, nil
		}

		return p.manager.EntryModified(ctx, current, hash)
	}

	return p.manager.EntryCreated(ctx, key, entrymgr.KindFile, hash)
}

func (p *Pipeline) handleDirectoryCreated(ctx context.Context, absDir, key string) error {
	rec, err := p.manager.EntryCreated(ctx, key, entrymgr.KindDirectory, fsutil.Hash{})
	if err != nil {
		return fmt.Errorf("recording directory %s: %w", key, err)
	}

	p.sender.EnqueueMetadata(rec)

	return filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if path == absDir {
			return nil
		}

		rel, err := filepath.Rel(p.homePath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if fsutil.IsNoise(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		var rec entrymgr.Record
		var opErr error

		if d.IsDir() {
			rec, opErr = p.manager.EntryCreated(ctx, rel, entrymgr.KindDirectory, fsutil.Hash{})
		} else {
			hash, hashErr := fsutil.HashFile(path)
			if hashErr != nil {
				return hashErr
			}

			rec, opErr = p.upsertFile(ctx, rel, hash)
		}

		if opErr != nil {
			return opErr
		}

		p.sender.EnqueueMetadata(rec)

		return nil
	})
}

func (p *Pipeline) handleRemove(ctx context.Context, key string) error {
	rec, err := p.manager.RemoveEntry(ctx, key)
	if err != nil {
		return fmt.Errorf("removing entry %s: %w", key, err)
	}

	p.sender.EnqueueMetadata(rec)

	if rec.Kind == entrymgr.KindDirectory {
		children, err := p.manager.RemoveDir(ctx, key)
		if err != nil {
			return fmt.Errorf("removing directory %s: %w", key, err)
		}

		for _, child := range children {
			p.sender.EnqueueMetadata(child)
		}
	}

	dirName, rel, ok := splitKey(key)
	if ok && filepath.Base(rel) == ".gitignore" {
		p.manager.RemoveGitignore(dirPrefixOf(dirName, filepath.Dir(rel)))
	}

	return nil
}

// Reload re-reads the config file and reconciles the live sync directory
// set against it, exactly as if the config file's fsnotify event had just
// fired. Exported so the daemon can force a reload from a SIGHUP handler
// without waiting on the filesystem to deliver the event.
func (p *Pipeline) Reload(ctx context.Context) error {
	return p.handleConfigEvent(ctx)
}

// handleConfigEvent reloads the config file and reconciles the live sync
// directory set against it. A home_path change is fatal; everything else
// is applied and, if the sync directory set changed, a resync Syn is
// enqueued to every known peer.
func (p *Pipeline) handleConfigEvent(ctx context.Context) error {
	cfg, err := p.loadConfig()
	if err != nil {
		p.logger.Warn("watcher: reloading config", slog.Any("error", err))

		return nil
	}

	if cfg.HomePath != p.homePath {
		return ErrHomePathChanged
	}

	wanted := make(map[string]struct{}, len(cfg.Directories))
	for _, d := range cfg.Directories {
		wanted[d.Name] = struct{}{}
	}

	current := syncDirSet(p.manager.ListSyncDirs())

	changed := false

	for name := range wanted {
		if _, ok := current[name]; !ok {
			p.manager.AddSyncDir(name)
			p.publish(control.EventDirectoryAdded, name)
			changed = true
		}
	}

	for name := range current {
		if _, ok := wanted[name]; !ok {
			p.manager.RemoveSyncDir(name)
			p.publish(control.EventDirectoryRemoved, name)
			changed = true
		}
	}

	if !changed {
		return nil
	}

	p.logger.Info("watcher: sync directory set changed, triggering resync")

	for _, peer := range p.registry.List() {
		p.sender.EnqueueHandshake(peer.Addr, true)
	}

	return nil
}

func (p *Pipeline) addWatchesRecursive(watcher FsWatcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			p.logger.Warn("watcher: walk error during watch setup", slog.String("path", path), slog.Any("error", walkErr))

			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if err := watcher.Add(path); err != nil {
			p.logger.Warn("watcher: failed to add watch", slog.String("path", path), slog.Any("error", err))
		}

		return nil
	})
}

func syncDirSet(dirs []entrymgr.SyncDirectory) map[string]struct{} {
	out := make(map[string]struct{}, len(dirs))
	for _, d := range dirs {
		out[d.Name] = struct{}{}
	}

	return out
}

func splitKey(key string) (dirName, rel string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:], true
		}
	}

	return "", "", false
}

func dirPrefixOf(dirName, rel string) string {
	if rel == "." || rel == "" {
		return dirName
	}

	return dirName + "/" + rel
}
