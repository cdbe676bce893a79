package update

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Manager is the facade composing the index, content store, archive
// builder and token authority into the operations the external API layer
// calls. It delegates; the only logic it owns is translating lookup
// misses into typed sentinels and serializing ingestion per version id.
type Manager struct {
	index   Index
	content *ContentStore
	archive *ArchiveBuilder
	tokens  *TokenAuthority
	logger  Logger
	clock   Clock
	idgen   IDGenerator

	mu      sync.Mutex
	ingests map[string]*ingestLock // advisory locks for in-flight ingests
}

// ingestLock serializes ingestions of one version id. holders counts
// waiters plus the current owner so the map entry can be dropped once
// the last one releases.
type ingestLock struct {
	mu      sync.Mutex
	holders int
}

// NewManager wires a Manager from its dependencies. tokenTTL <= 0 uses
// DefaultTokenTTL.
func NewManager(index Index, store Store, logger Logger, clock Clock, tokens TokenGenerator, idgen IDGenerator, tokenTTL time.Duration) *Manager {
	return &Manager{
		index:   index,
		content: NewContentStore(index, store, logger),
		archive: NewArchiveBuilder(store, logger),
		tokens:  NewTokenAuthority(index, clock, tokens, tokenTTL, logger),
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
		ingests: make(map[string]*ingestLock),
	}
}

// ListChannels returns all channels ordered by name.
func (m *Manager) ListChannels() ([]ChannelRecord, error) {
	return m.index.ListChannels()
}

// ResolveChannel returns the version id a channel points to.
// Fails with ErrUnknownChannel if the channel does not exist.
func (m *Manager) ResolveChannel(name string) (string, error) {
	ch, err := m.index.ResolveChannel(name)
	if err != nil {
		return "", fmt.Errorf("resolving channel: %w", err)
	}
	if ch == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return ch.VersionID, nil
}

// ResolveVersion resolves a reference that may be either a channel name
// or a version id. Channels take precedence. Fails with ErrUnknownVersion
// when the reference matches neither.
func (m *Manager) ResolveVersion(ref string) (string, error) {
	ch, err := m.index.ResolveChannel(ref)
	if err != nil {
		return "", fmt.Errorf("resolving channel: %w", err)
	}
	if ch != nil {
		return ch.VersionID, nil
	}

	rec, err := m.index.GetVersion(ref)
	if err != nil {
		return "", fmt.Errorf("looking up version: %w", err)
	}
	if rec == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownVersion, ref)
	}
	return rec.VersionID, nil
}

// GetVersionManifest returns the manifest for a version id: metadata plus
// the full file tree with per-file content hashes. Fails with
// ErrUnknownVersion if the id is not indexed.
func (m *Manager) GetVersionManifest(versionID string) (*Manifest, error) {
	rec, err := m.index.GetVersion(versionID)
	if err != nil {
		return nil, fmt.Errorf("looking up version: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, versionID)
	}

	files, err := m.index.ListVersionFiles(versionID)
	if err != nil {
		return nil, fmt.Errorf("listing version files: %w", err)
	}

	manifest := &Manifest{
		VersionID:    rec.VersionID,
		Date:         rec.CreatedAt,
		ArchiveBytes: rec.ArchiveBytes,
		ArchiveMD5:   rec.ArchiveMD5,
		Files:        make(map[string]ManifestFile, len(files)),
	}
	for _, f := range files {
		manifest.Files[f.Path] = ManifestFile{
			MD5:          f.MD5,
			Bytes:        f.Bytes,
			ArchiveBytes: f.ArchiveBytes,
		}
	}
	return manifest, nil
}

// GetChannelManifest resolves a channel and returns the manifest of the
// version it points to. A channel pointing at a missing version fails
// with ErrBrokenChannel: that is index corruption, not a plain not-found.
func (m *Manager) GetChannelManifest(name string) (*Manifest, error) {
	versionID, err := m.ResolveChannel(name)
	if err != nil {
		return nil, err
	}

	manifest, err := m.GetVersionManifest(versionID)
	if err != nil {
		if errors.Is(err, ErrUnknownVersion) {
			return nil, fmt.Errorf("channel %q points at %q: %w", name, versionID, ErrBrokenChannel)
		}
		return nil, err
	}
	return manifest, nil
}

// SetChannel points a channel at a version, creating the channel on
// first use. Fails with ErrUnknownVersion if the version is not indexed.
func (m *Manager) SetChannel(name, versionID string) error {
	if err := m.index.UpsertChannel(name, versionID); err != nil {
		return fmt.Errorf("setting channel %q: %w", name, err)
	}
	m.logger.Info("channel set", "channel", name, "version", versionID)
	return nil
}

// IssueDownloadToken returns a valid download token for the (path,
// client) pair, reusing an unexpired one when present.
func (m *Manager) IssueDownloadToken(relativePath, ip string) (*TokenRecord, error) {
	return m.tokens.Issue(relativePath, ip)
}

// CheckDownloadAccess reports whether candidate grants the client access
// to the path.
func (m *Manager) CheckDownloadAccess(relativePath, ip, candidate string) (bool, error) {
	return m.tokens.CheckAccess(relativePath, ip, candidate)
}

// PurgeExpiredTokens deletes expired token rows and returns the count.
func (m *Manager) PurgeExpiredTokens() (int64, error) {
	return m.tokens.PurgeExpired()
}

// lockIngest acquires the advisory lock for a version id and returns the
// release func. Ingestion of distinct ids proceeds in parallel; two
// ingestions of the same id serialize so the existence check has no race
// window. The map holds only in-flight ids: the last holder to release
// removes the entry.
func (m *Manager) lockIngest(versionID string) func() {
	m.mu.Lock()
	l, ok := m.ingests[versionID]
	if !ok {
		l = &ingestLock{}
		m.ingests[versionID] = l
	}
	l.holders++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		m.mu.Lock()
		l.holders--
		if l.holders == 0 {
			delete(m.ingests, versionID)
		}
		m.mu.Unlock()
	}
}
