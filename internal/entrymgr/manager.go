package entrymgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lansync/lansyncd/internal/fsutil"
	"github.com/lansync/lansyncd/internal/ignore"
	"github.com/lansync/lansyncd/internal/pathmodel"
	"github.com/lansync/lansyncd/internal/store"
	"github.com/lansync/lansyncd/internal/version"
)

// ErrNotFound is returned when an operation names an entry that has no
// record in the store.
var ErrNotFound = errors.New("entrymgr: entry not found")

// Manager is the single point of authority for entry state. It reconciles
// the filesystem against the entry store at startup, resolves conflicts
// deterministically, and produces the handshake payloads and transfer
// plans the transport layer acts on. Transport and the watcher pipeline
// only ever call into a Manager; neither touches the entry store directly.
type Manager struct {
	store    store.Store
	localID  uuid.UUID
	homePath string
	logger   *slog.Logger

	ignores *ignore.Registry

	mu       sync.RWMutex
	syncDirs map[string]SyncDirectory
}

// NewManager constructs a Manager rooted at homePath, owning st as its
// entry store. syncDirs is the configured set of sync directory names.
func NewManager(st store.Store, localID uuid.UUID, homePath string, syncDirs []SyncDirectory, logger *slog.Logger) *Manager {
	dirs := make(map[string]SyncDirectory, len(syncDirs))
	for _, d := range syncDirs {
		dirs[d.Name] = d
	}

	return &Manager{
		store:    st,
		localID:  localID,
		homePath: homePath,
		logger:   logger,
		ignores:  ignore.NewRegistry(),
		syncDirs: dirs,
	}
}

// Init ensures every configured sync directory exists, walks each one to
// build an in-memory view of what the filesystem actually holds, and
// reconciles that view against the entry store: records whose observed
// hash differs are bumped and upserted, records absent from disk are
// deleted, and entries observed but unknown to the store are inserted at
// version{local: 0}.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.RLock()
	dirs := make([]SyncDirectory, 0, len(m.syncDirs))
	for _, d := range m.syncDirs {
		dirs = append(dirs, d)
	}
	m.mu.RUnlock()

	observed := make(map[string]Record)

	for _, dir := range dirs {
		root := filepath.Join(m.homePath, dir.Name)
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("entrymgr: ensuring sync directory %s: %w", dir.Name, err)
		}

		if err := m.walkDir(dir.Name, root, observed); err != nil {
			return fmt.Errorf("entrymgr: walking sync directory %s: %w", dir.Name, err)
		}
	}

	return m.reconcile(ctx, observed)
}

// walkDir walks root (the filesystem path for sync directory dirName),
// registering .gitignore files as it finds them and populating observed
// with every entry it does not classify as noise or ignored.
func (m *Manager) walkDir(dirName, root string, observed map[string]Record) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
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

		if m.ignores.IsIgnored(pathmodel.Join(dirName, rel), d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		name := pathmodel.Join(dirName, rel)

		if d.IsDir() {
			observed[name] = Record{Name: name, Kind: KindDirectory}
			return nil
		}

		if d.Name() == ".gitignore" {
			prefix := pathmodel.Join(dirName, filepath.ToSlash(filepath.Dir(rel)))
			if filepath.Dir(rel) == "." {
				prefix = dirName
			}

			if err := m.ignores.Insert(prefix, path); err != nil {
				return err
			}
		}

		hash, err := fsutil.HashFile(path)
		if err != nil {
			return err
		}

		observed[name] = Record{Name: name, Kind: KindFile, Hash: hash}

		return nil
	})
}

// reconcile compares observed (the filesystem's current state) against
// the entry store and brings the store in line with it.
func (m *Manager) reconcile(ctx context.Context, observed map[string]Record) error {
	rows, err := m.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("entrymgr: listing entries: %w", err)
	}

	for _, row := range rows {
		rec, err := rowToRecord(row)
		if err != nil {
			return err
		}

		obs, ok := observed[rec.Name]
		if !ok {
			if err := m.store.Delete(ctx, rec.Name); err != nil {
				return fmt.Errorf("entrymgr: deleting vanished entry %s: %w", rec.Name, err)
			}

			continue
		}

		delete(observed, rec.Name)

		if rec.Kind == obs.Kind && rec.Hash == obs.Hash && rec.Tombstone == obs.Tombstone {
			continue
		}

		rec.Kind = obs.Kind
		rec.Hash = obs.Hash
		rec.Tombstone = obs.Tombstone
		rec.Version = version.Increment(rec.Version, m.localID)

		if err := m.upsert(ctx, rec); err != nil {
			return fmt.Errorf("entrymgr: updating changed entry %s: %w", rec.Name, err)
		}
	}

	for _, obs := range observed {
		obs.Version = version.Vector{m.localID: 0}

		if err := m.upsert(ctx, obs); err != nil {
			return fmt.Errorf("entrymgr: inserting new entry %s: %w", obs.Name, err)
		}
	}

	return nil
}

// Get returns the record currently stored under name, if any.
func (m *Manager) Get(ctx context.Context, name string) (Record, bool, error) {
	row, found, err := m.store.Get(ctx, name)
	if err != nil {
		return Record{}, false, fmt.Errorf("entrymgr: loading entry %s: %w", name, err)
	}

	if !found {
		return Record{}, false, nil
	}

	rec, err := rowToRecord(row)

	return rec, err == nil, err
}

// EntryCreated records a brand-new local entry at version{local: 0}.
func (m *Manager) EntryCreated(ctx context.Context, name string, kind Kind, hash fsutil.Hash) (Record, error) {
	rec := Record{Name: name, Kind: kind, Hash: hash, Version: version.Vector{m.localID: 0}}

	if err := m.upsert(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("entrymgr: creating entry %s: %w", name, err)
	}

	return rec, nil
}

// EntryModified applies a local content change to an existing record,
// incrementing the local peer's version counter.
func (m *Manager) EntryModified(ctx context.Context, rec Record, newHash fsutil.Hash) (Record, error) {
	updated := rec.Clone()
	updated.Hash = newHash
	updated.Version = version.Increment(updated.Version, m.localID)

	if err := m.upsert(ctx, updated); err != nil {
		return Record{}, fmt.Errorf("entrymgr: modifying entry %s: %w", rec.Name, err)
	}

	return updated, nil
}

// RemoveEntry tombstones the record named name: the hash becomes the
// sentinel and the local version counter is incremented. The record is
// never physically deleted here; it is retained so the deletion can
// propagate to peers.
func (m *Manager) RemoveEntry(ctx context.Context, name string) (Record, error) {
	row, found, err := m.store.Get(ctx, name)
	if err != nil {
		return Record{}, fmt.Errorf("entrymgr: loading entry %s: %w", name, err)
	}
	if !found {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	rec, err := rowToRecord(row)
	if err != nil {
		return Record{}, err
	}

	rec.Hash = fsutil.TombstoneHash
	rec.Tombstone = true
	rec.Version = version.Increment(rec.Version, m.localID)

	if err := m.upsert(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("entrymgr: tombstoning entry %s: %w", name, err)
	}

	return rec, nil
}

// RemoveDir tombstones every record whose name starts with prefix + "/".
// The record named prefix itself is not touched; RemoveEntry tombstones it.
func (m *Manager) RemoveDir(ctx context.Context, prefix string) ([]Record, error) {
	rows, err := m.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("entrymgr: listing entries: %w", err)
	}

	childPrefix := prefix + "/"
	var removed []Record

	for _, row := range rows {
		if !strings.HasPrefix(row.Name, childPrefix) {
			continue
		}

		rec, err := rowToRecord(row)
		if err != nil {
			return nil, err
		}

		rec.Hash = fsutil.TombstoneHash
		rec.Tombstone = true
		rec.Version = version.Increment(rec.Version, m.localID)

		if err := m.upsert(ctx, rec); err != nil {
			return nil, fmt.Errorf("entrymgr: tombstoning entry %s: %w", rec.Name, err)
		}

		removed = append(removed, rec)
	}

	return removed, nil
}

// HandleMetadata incorporates a single entry announced by a peer. If the
// local store has no record under that name, the peer's record is taken
// verbatim and KeepOther is returned. Otherwise CompareAndResolve decides.
func (m *Manager) HandleMetadata(ctx context.Context, peerID uuid.UUID, peerRecord Record) (version.Comparison, error) {
	row, found, err := m.store.Get(ctx, peerRecord.Name)
	if err != nil {
		return version.Equal, fmt.Errorf("entrymgr: loading entry %s: %w", peerRecord.Name, err)
	}

	if !found {
		if err := m.upsert(ctx, peerRecord); err != nil {
			return version.Equal, fmt.Errorf("entrymgr: adopting new entry %s: %w", peerRecord.Name, err)
		}

		return version.KeepOther, nil
	}

	local, err := rowToRecord(row)
	if err != nil {
		return version.Equal, err
	}

	return m.CompareAndResolve(ctx, &local, &peerRecord, peerID)
}

// CompareAndResolve compares local and peer by version vector, resolves a
// tie via the conflict policy if needed, merges version vectors, persists
// the winning data, and returns the decision that was made. Records with
// the same kind, hash and tombstone state are Equal whatever their vectors.
func (m *Manager) CompareAndResolve(ctx context.Context, local, peer *Record, peerID uuid.UUID) (version.Comparison, error) {
	decision := version.Compare(local.Version, peer.Version)

	if local.Kind == peer.Kind && local.Hash == peer.Hash && local.Tombstone == peer.Tombstone {
		decision = version.Equal
	}

	if decision == version.Conflict {
		localPath := filepath.Join(m.homePath, filepath.FromSlash(local.Name))

		resolved, err := resolveConflict(local, peer, m.localID, peerID, localPath)
		if err != nil {
			return version.Equal, fmt.Errorf("entrymgr: resolving conflict for %s: %w", local.Name, err)
		}

		decision = resolved
	}

	merged := local.Clone()
	merged.Version = version.Merge(local.Version, peer.Version)

	if decision == version.KeepOther {
		merged.Kind = peer.Kind
		merged.Hash = peer.Hash
		merged.Tombstone = peer.Tombstone
	}

	if err := m.upsert(ctx, merged); err != nil {
		return version.Equal, fmt.Errorf("entrymgr: persisting resolution for %s: %w", local.Name, err)
	}

	return decision, nil
}

// GetEntriesToRequest filters peerEntries down to the ones worth asking
// this peer for: entries under a sync directory the local peer also
// syncs, that are either unknown locally or whose comparison favors the
// peer's copy. This is a read-only decision; no store mutation or
// conflict-artifact side effect happens here, only via the real exchange
// that follows.
func (m *Manager) GetEntriesToRequest(ctx context.Context, peerID uuid.UUID, peerEntries map[string]Record) ([]Record, error) {
	var want []Record

	for name, peerRec := range peerEntries {
		dirName, _, ok := pathmodel.Split(name)
		if !ok || !m.IsSyncDir(dirName) {
			continue
		}

		row, found, err := m.store.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("entrymgr: loading entry %s: %w", name, err)
		}

		if !found {
			want = append(want, peerRec)
			continue
		}

		local, err := rowToRecord(row)
		if err != nil {
			return nil, err
		}

		decision := version.Compare(local.Version, peerRec.Version)
		if decision == version.Conflict {
			decision = conflictDecision(&local, &peerRec, m.localID, peerID)
		}

		if decision == version.KeepOther {
			want = append(want, peerRec)
		}
	}

	return want, nil
}

// GetHandshakeData returns the full inventory exchanged on Syn/Ack.
// hostname and instanceID are supplied by the caller since the manager
// has no notion of process identity.
func (m *Manager) GetHandshakeData(ctx context.Context, hostname string, instanceID uuid.UUID) (HandshakePayload, error) {
	rows, err := m.store.ListAll(ctx)
	if err != nil {
		return HandshakePayload{}, fmt.Errorf("entrymgr: listing entries: %w", err)
	}

	entries := make(map[string]Record, len(rows))
	for _, row := range rows {
		rec, err := rowToRecord(row)
		if err != nil {
			return HandshakePayload{}, err
		}

		entries[rec.Name] = rec
	}

	return HandshakePayload{
		Hostname:   hostname,
		InstanceID: instanceID,
		SyncDirs:   m.ListSyncDirs(),
		Entries:    entries,
	}, nil
}

// AddSyncDir registers name as a sync directory.
func (m *Manager) AddSyncDir(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncDirs[name] = SyncDirectory{Name: name}
}

// RemoveSyncDir deregisters name as a sync directory. Existing records
// under it are left untouched; the caller is responsible for tombstoning
// via RemoveDir first if that is the desired behavior.
func (m *Manager) RemoveSyncDir(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.syncDirs, name)
}

// ListSyncDirs returns the currently configured sync directories.
func (m *Manager) ListSyncDirs() []SyncDirectory {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dirs := make([]SyncDirectory, 0, len(m.syncDirs))
	for _, d := range m.syncDirs {
		dirs = append(dirs, d)
	}

	return dirs
}

// IsSyncDir reports whether name is a currently configured sync directory.
func (m *Manager) IsSyncDir(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.syncDirs[name]

	return ok
}

// InsertGitignore registers the .gitignore file at canonicalPath, whose
// sync-directory-relative containing directory is dirPrefix.
func (m *Manager) InsertGitignore(dirPrefix, canonicalPath string) error {
	return m.ignores.Insert(dirPrefix, canonicalPath)
}

// RemoveGitignore deregisters whatever .gitignore was registered at
// dirPrefix.
func (m *Manager) RemoveGitignore(dirPrefix string) {
	m.ignores.Remove(dirPrefix)
}

// Ignores returns the manager's ignore registry, so the watcher pipeline
// can classify a path the same way Init and walkDir do without duplicating
// .gitignore state.
func (m *Manager) Ignores() *ignore.Registry {
	return m.ignores
}

// HomePath returns the directory every sync directory is rooted under.
func (m *Manager) HomePath() string {
	return m.homePath
}

func (m *Manager) upsert(ctx context.Context, rec Record) error {
	row, err := recordToRow(rec)
	if err != nil {
		return err
	}

	return m.store.Upsert(ctx, row)
}

func rowToRecord(row store.Row) (Record, error) {
	var v version.Vector
	if err := json.Unmarshal(row.VersionJSON, &v); err != nil {
		return Record{}, fmt.Errorf("entrymgr: decoding version vector for %s: %w", row.Name, err)
	}

	return Record{
		Name:      row.Name,
		Kind:      Kind(row.Kind),
		Hash:      row.Hash,
		Tombstone: row.Tombstone,
		Version:   v,
	}, nil
}

func recordToRow(rec Record) (store.Row, error) {
	versionJSON, err := json.Marshal(rec.Version)
	if err != nil {
		return store.Row{}, fmt.Errorf("entrymgr: encoding version vector for %s: %w", rec.Name, err)
	}

	return store.Row{
		Name:        rec.Name,
		Kind:        int(rec.Kind),
		Hash:        fsutil.Hash(rec.Hash),
		Tombstone:   rec.Tombstone,
		VersionJSON: versionJSON,
	}, nil
}
