package update_test

import (
	"errors"
	"testing"

	"github.com/lordkekz/KosmikAutoUpdate/internal/store"
	"github.com/lordkekz/KosmikAutoUpdate/internal/testutil"
	"github.com/lordkekz/KosmikAutoUpdate/internal/update"
)

func newTestManager(t *testing.T) (*update.Manager, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	mgr := update.NewManager(
		testutil.NewTestIndex(t),
		st,
		update.NewNopLogger(),
		testutil.FixedClock(),
		testutil.NewStubTokenGenerator(),
		testutil.NewStubIDGenerator(),
		0,
	)
	return mgr, st
}

// addVersion ingests a release tree and fails the test on error.
func addVersion(t *testing.T, mgr *update.Manager, versionID string, files map[string]string) *update.Manifest {
	t.Helper()
	manifest, err := mgr.AddVersion(versionID, testutil.WriteTree(t, files))
	if err != nil {
		t.Fatalf("AddVersion(%q) error = %v", versionID, err)
	}
	return manifest
}

func TestManager_Channels(t *testing.T) {
	t.Run("creates a channel on first set", func(t *testing.T) {
		mgr, _ := newTestManager(t)
		addVersion(t, mgr, "1.0.0", map[string]string{"app.bin": "v1"})

		if err := mgr.SetChannel("stable", "1.0.0"); err != nil {
			t.Fatalf("SetChannel() error = %v", err)
		}

		got, err := mgr.ResolveChannel("stable")
		if err != nil {
			t.Fatalf("ResolveChannel() error = %v", err)
		}
		if got != "1.0.0" {
			t.Errorf("ResolveChannel() = %q, want %q", got, "1.0.0")
		}
	})

	t.Run("last write wins on repointing", func(t *testing.T) {
		mgr, _ := newTestManager(t)
		addVersion(t, mgr, "1.0.0", map[string]string{"app.bin": "v1"})
		addVersion(t, mgr, "1.1.0", map[string]string{"app.bin": "v2"})

		if err := mgr.SetChannel("stable", "1.0.0"); err != nil {
			t.Fatalf("SetChannel() error = %v", err)
		}
		if err := mgr.SetChannel("stable", "1.1.0"); err != nil {
			t.Fatalf("SetChannel() error = %v", err)
		}

		got, err := mgr.ResolveChannel("stable")
		if err != nil {
			t.Fatalf("ResolveChannel() error = %v", err)
		}
		if got != "1.1.0" {
			t.Errorf("ResolveChannel() = %q, want %q", got, "1.1.0")
		}
	})

	t.Run("rejects pointing at an unknown version", func(t *testing.T) {
		mgr, _ := newTestManager(t)

		err := mgr.SetChannel("stable", "9.9.9")
		if !errors.Is(err, update.ErrUnknownVersion) {
			t.Errorf("SetChannel() error = %v, want ErrUnknownVersion", err)
		}
	})

	t.Run("lists channels ordered by name", func(t *testing.T) {
		mgr, _ := newTestManager(t)
		addVersion(t, mgr, "1.0.0", map[string]string{"app.bin": "v1"})

		for _, name := range []string{"stable", "beta", "alpha"} {
			if err := mgr.SetChannel(name, "1.0.0"); err != nil {
				t.Fatalf("SetChannel(%q) error = %v", name, err)
			}
		}

		channels, err := mgr.ListChannels()
		if err != nil {
			t.Fatalf("ListChannels() error = %v", err)
		}
		want := []string{"alpha", "beta", "stable"}
		if len(channels) != len(want) {
			t.Fatalf("ListChannels() returned %d channels, want %d", len(channels), len(want))
		}
		for i, name := range want {
			if channels[i].Name != name {
				t.Errorf("channels[%d].Name = %q, want %q", i, channels[i].Name, name)
			}
		}
	})

	t.Run("resolving an unknown channel fails", func(t *testing.T) {
		mgr, _ := newTestManager(t)

		_, err := mgr.ResolveChannel("nightly")
		if !errors.Is(err, update.ErrUnknownChannel) {
			t.Errorf("ResolveChannel() error = %v, want ErrUnknownChannel", err)
		}
	})
}

func TestManager_ResolveVersion(t *testing.T) {
	mgr, _ := newTestManager(t)
	addVersion(t, mgr, "1.0.0", map[string]string{"app.bin": "v1"})
	addVersion(t, mgr, "2.0.0", map[string]string{"app.bin": "v2"})
	if err := mgr.SetChannel("stable", "2.0.0"); err != nil {
		t.Fatalf("SetChannel() error = %v", err)
	}

	t.Run("resolves a channel name", func(t *testing.T) {
		got, err := mgr.ResolveVersion("stable")
		if err != nil {
			t.Fatalf("ResolveVersion() error = %v", err)
		}
		if got != "2.0.0" {
			t.Errorf("ResolveVersion() = %q, want %q", got, "2.0.0")
		}
	})

	t.Run("resolves a version id", func(t *testing.T) {
		got, err := mgr.ResolveVersion("1.0.0")
		if err != nil {
			t.Fatalf("ResolveVersion() error = %v", err)
		}
		if got != "1.0.0" {
			t.Errorf("ResolveVersion() = %q, want %q", got, "1.0.0")
		}
	})

	t.Run("fails for an unknown reference", func(t *testing.T) {
		_, err := mgr.ResolveVersion("3.0.0")
		if !errors.Is(err, update.ErrUnknownVersion) {
			t.Errorf("ResolveVersion() error = %v, want ErrUnknownVersion", err)
		}
	})
}

func TestManager_GetChannelManifest(t *testing.T) {
	t.Run("returns the pointed version's manifest", func(t *testing.T) {
		mgr, _ := newTestManager(t)
		addVersion(t, mgr, "1.0.0", map[string]string{"app.bin": "v1"})
		if err := mgr.SetChannel("stable", "1.0.0"); err != nil {
			t.Fatalf("SetChannel() error = %v", err)
		}

		manifest, err := mgr.GetChannelManifest("stable")
		if err != nil {
			t.Fatalf("GetChannelManifest() error = %v", err)
		}
		if manifest.VersionID != "1.0.0" {
			t.Errorf("VersionID = %q, want %q", manifest.VersionID, "1.0.0")
		}
	})

	t.Run("fails for an unknown channel", func(t *testing.T) {
		mgr, _ := newTestManager(t)

		_, err := mgr.GetChannelManifest("stable")
		if !errors.Is(err, update.ErrUnknownChannel) {
			t.Errorf("GetChannelManifest() error = %v, want ErrUnknownChannel", err)
		}
	})
}

func TestManager_GetVersionManifest(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.GetVersionManifest("1.0.0")
	if !errors.Is(err, update.ErrUnknownVersion) {
		t.Errorf("GetVersionManifest() error = %v, want ErrUnknownVersion", err)
	}
}
