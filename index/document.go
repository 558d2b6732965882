// Package index maintains the release index: the remote jorfile document
// listing channels, blockchain configurations and published releases, cached
// locally, and the resolver that turns a channel plus constraint into one
// concrete release.
package index

import (
	"fmt"
	"time"

	"github.com/blang/semver"
	"github.com/input-output-hk/jorup/version"
)

const documentSchema = 1

const publishDateFormat = "2006-01-02"

// Artifact is one per-platform downloadable archive.
type Artifact struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

// Release is one published build of the node binary.
type Release struct {
	Channel     string              `json:"channel"`
	Version     string              `json:"version"`
	PublishDate string              `json:"publish_date"`
	Artifacts   map[string]Artifact `json:"artifacts"`
}

// SemVer returns the parsed version. Documents are validated at load time so
// this cannot fail afterwards.
func (r *Release) SemVer() semver.Version {
	v, _ := version.Parse(r.Version)
	return v
}

// Date returns the parsed publish date.
func (r *Release) Date() time.Time {
	d, _ := time.Parse(publishDateFormat, r.PublishDate)
	return d
}

// Less orders releases ascending by (publish date, version), the order whose
// maximum is "latest".
func (r *Release) Less(other *Release) bool {
	rd, od := r.Date(), other.Date()
	if !rd.Equal(od) {
		return rd.Before(od)
	}
	return r.SemVer().LT(other.SemVer())
}

// TrustedPeer is a bootstrap peer of a blockchain.
type TrustedPeer struct {
	Address string `json:"address"`
}

// Blockchain is the per-channel blockchain configuration descriptor.
type Blockchain struct {
	Channel            string                 `json:"channel"`
	Description        string                 `json:"description"`
	Block0Hash         string                 `json:"block0_hash"`
	CompatibleVersions string                 `json:"compatible_versions"`
	TrustedPeers       []TrustedPeer          `json:"trusted_peers"`
	DefaultConfig      map[string]interface{} `json:"default_config,omitempty"`

	compatible semver.Range
}

// Compatible reports whether a release version is inside the channel's
// compatible range. An empty range accepts every version.
func (b *Blockchain) Compatible(v semver.Version) bool {
	if b.compatible == nil {
		return true
	}
	return b.compatible(v)
}

// Document is the whole index, replaced wholesale on refresh.
type Document struct {
	Schema      int          `json:"schema"`
	Blockchains []Blockchain `json:"blockchains"`
	Releases    []Release    `json:"releases"`
}

func (d *Document) validate() error {
	if d.Schema != documentSchema {
		return fmt.Errorf("unsupported index schema %d (want %d)", d.Schema, documentSchema)
	}
	for i := range d.Blockchains {
		b := &d.Blockchains[i]
		if _, err := version.ParseChannel(b.Channel); err != nil {
			return fmt.Errorf("blockchain %d: %w", i, err)
		}
		if b.CompatibleVersions != "" {
			rng, err := semver.ParseRange(b.CompatibleVersions)
			if err != nil {
				return fmt.Errorf("blockchain %s: bad version range %q: %w", b.Channel, b.CompatibleVersions, err)
			}
			b.compatible = rng
		}
	}
	for i := range d.Releases {
		r := &d.Releases[i]
		if _, err := version.Parse(r.Version); err != nil {
			return fmt.Errorf("release %d: bad version %q: %w", i, r.Version, err)
		}
		if _, err := time.Parse(publishDateFormat, r.PublishDate); err != nil {
			return fmt.Errorf("release %s: bad publish date %q: %w", r.Version, r.PublishDate, err)
		}
	}
	return nil
}

// Blockchain returns the configuration descriptor for a channel family, or
// nil when the index does not declare it.
func (d *Document) Blockchain(channel string) *Blockchain {
	for i := range d.Blockchains {
		if d.Blockchains[i].Channel == channel {
			return &d.Blockchains[i]
		}
	}
	return nil
}
