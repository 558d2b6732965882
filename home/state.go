package home

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// schemaVersion tags every durable state file so newer jorup builds can
// detect documents they do not understand instead of misreading them.
const schemaVersion = 1

// StateError reports a corrupted or incompatible durable state file. It is
// surfaced as-is; repairs require explicit user action.
type StateError struct {
	Path   string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state file %s: %s", e.Path, e.Reason)
}

// InstalledRelease is one registry entry, created after a successful unpack.
type InstalledRelease struct {
	Channel     string    `json:"channel"`
	Version     string    `json:"version"`
	InstallDir  string    `json:"install_dir"`
	InstalledAt time.Time `json:"installed_at"`
}

type registryDoc struct {
	Schema   int                `json:"schema"`
	Releases []InstalledRelease `json:"releases"`
}

type defaultsDoc struct {
	Schema         int               `json:"schema"`
	DefaultChannel string            `json:"default_channel,omitempty"`
	Versions       map[string]string `json:"versions"`
}

// RunRecord is the durable evidence that a channel has a live managed node.
type RunRecord struct {
	Schema    int       `json:"schema"`
	Channel   string    `json:"channel"`
	Version   string    `json:"version"`
	PID       int       `json:"pid"`
	Binary    string    `json:"binary"`
	RestPort  int       `json:"rest_port"`
	StartedAt time.Time `json:"started_at"`
}

func readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, &StateError{Path: path, Reason: err.Error()}
	}
	return true, nil
}

// writeJSONAtomic writes v to path with the write-then-rename discipline so
// readers never observe a partial document.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func checkSchema(path string, got int) error {
	if got != schemaVersion {
		return &StateError{Path: path, Reason: fmt.Sprintf("unsupported schema %d (want %d)", got, schemaVersion)}
	}
	return nil
}

// InstalledReleases returns the registry entries whose install directories
// still exist. Entries orphaned by a manual delete are skipped, not errors.
func (d *Dir) InstalledReleases() ([]InstalledRelease, error) {
	var doc registryDoc
	found, err := readJSON(d.registryFile(), &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if err := checkSchema(d.registryFile(), doc.Schema); err != nil {
		return nil, err
	}
	releases := doc.Releases[:0]
	for _, rel := range doc.Releases {
		if fi, err := os.Stat(rel.InstallDir); err == nil && fi.IsDir() {
			releases = append(releases, rel)
		}
	}
	return releases, nil
}

// RecordInstall adds or replaces the registry entry for (channel, version).
func (d *Dir) RecordInstall(rel InstalledRelease) error {
	return d.withLock(func() error {
		var doc registryDoc
		found, err := readJSON(d.registryFile(), &doc)
		if err != nil {
			return err
		}
		if found {
			if err := checkSchema(d.registryFile(), doc.Schema); err != nil {
				return err
			}
		}
		doc.Schema = schemaVersion

		replaced := false
		for i, existing := range doc.Releases {
			if existing.Channel == rel.Channel && existing.Version == rel.Version {
				doc.Releases[i] = rel
				replaced = true
				break
			}
		}
		if !replaced {
			doc.Releases = append(doc.Releases, rel)
		}
		return writeJSONAtomic(d.registryFile(), &doc)
	})
}

// DefaultChannel returns the channel family used when a command names none,
// or "" when no default has been selected yet.
func (d *Dir) DefaultChannel() (string, error) {
	doc, found, err := d.readDefaults()
	if err != nil || !found {
		return "", err
	}
	return doc.DefaultChannel, nil
}

// DefaultVersion returns the selected version for a channel family, or ""
// when none was made default.
func (d *Dir) DefaultVersion(channel string) (string, error) {
	doc, found, err := d.readDefaults()
	if err != nil || !found {
		return "", err
	}
	return doc.Versions[channel], nil
}

// DefaultVersions returns the whole selection map.
func (d *Dir) DefaultVersions() (map[string]string, error) {
	doc, found, err := d.readDefaults()
	if err != nil || !found {
		return nil, err
	}
	return doc.Versions, nil
}

// SetDefault records version as the default for channel and makes channel
// the default channel. Keying by channel family makes a repeated
// make-default overwrite rather than duplicate.
func (d *Dir) SetDefault(channel, version string) error {
	return d.withLock(func() error {
		doc, found, err := d.readDefaults()
		if err != nil {
			return err
		}
		if !found {
			doc = defaultsDoc{Versions: map[string]string{}}
		}
		doc.Schema = schemaVersion
		doc.DefaultChannel = channel
		doc.Versions[channel] = version
		return writeJSONAtomic(d.defaultsFile(), &doc)
	})
}

func (d *Dir) readDefaults() (defaultsDoc, bool, error) {
	var doc defaultsDoc
	found, err := readJSON(d.defaultsFile(), &doc)
	if err != nil || !found {
		return doc, found, err
	}
	if err := checkSchema(d.defaultsFile(), doc.Schema); err != nil {
		return doc, true, err
	}
	if doc.Versions == nil {
		doc.Versions = map[string]string{}
	}
	return doc, true, nil
}

// ReadRunRecord returns the run record for a channel, or nil when none
// exists. Liveness of the recorded pid is the runner's concern.
func (d *Dir) ReadRunRecord(channel string) (*RunRecord, error) {
	var rec RunRecord
	found, err := readJSON(d.runRecordFile(channel), &rec)
	if err != nil || !found {
		return nil, err
	}
	if err := checkSchema(d.runRecordFile(channel), rec.Schema); err != nil {
		return nil, err
	}
	return &rec, nil
}

// WriteRunRecord persists the run record for rec.Channel.
func (d *Dir) WriteRunRecord(rec RunRecord) error {
	rec.Schema = schemaVersion
	if _, err := d.ChannelDir(rec.Channel); err != nil {
		return err
	}
	return d.withLock(func() error {
		return writeJSONAtomic(d.runRecordFile(rec.Channel), &rec)
	})
}

// RemoveRunRecord deletes the run record for a channel; removing an absent
// record is not an error.
func (d *Dir) RemoveRunRecord(channel string) error {
	return d.withLock(func() error {
		err := os.Remove(d.runRecordFile(channel))
		if os.IsNotExist(err) {
			return nil
		}
		return err
	})
}
