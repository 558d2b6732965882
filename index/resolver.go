package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/blang/semver"
	"github.com/input-output-hk/jorup/home"
	"github.com/input-output-hk/jorup/version"
)

// Resolution failures. Each is surfaced with the unmet constraint attached;
// the resolver never silently falls back to another channel or version.
var (
	ErrNoSuchVersion       = errors.New("no release with the requested version")
	ErrNoDefaultChannel    = errors.New("no channel given and no default channel selected")
	ErrNoCompatibleRelease = errors.New("cannot run without compatible release")
)

// Resolved is the outcome of a resolution: exactly one concrete release.
// Release is nil when the answer came purely from the local registry (for
// example when running offline); Installed is non-nil when the release is
// already on disk.
type Resolved struct {
	Channel    version.Channel
	Version    semver.Version
	Release    *Release
	Installed  *home.InstalledRelease
	Blockchain *Blockchain
}

// Resolver picks one concrete release for a channel and constraint, against
// the release index and the local installed-release registry.
type Resolver struct {
	Index    *Index
	Home     *home.Dir
	Platform string
}

// Resolve implements the resolution algorithm. ch may be the zero Channel,
// in which case the durable default channel applies. With refresh set the
// index is refreshed first and a fetch failure aborts; without it the cached
// index is used as-is, stale or not.
func (r *Resolver) Resolve(ctx context.Context, ch version.Channel, c version.Constraint, refresh bool) (*Resolved, error) {
	if refresh {
		if err := r.Index.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	if ch.Name == "" {
		name, err := r.Home.DefaultChannel()
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, ErrNoDefaultChannel
		}
		parsed, err := version.ParseChannel(name)
		if err != nil {
			return nil, err
		}
		ch = parsed
	}

	if !c.IsAny() {
		return r.resolveExact(ch, c)
	}

	// Without a network refresh an already-installed default answers
	// directly, even if the index has moved on.
	if !refresh && !ch.Dated() {
		if res, err := r.installedDefault(ch); err != nil || res != nil {
			return res, err
		}
	}

	doc, err := r.Index.Current()
	if err != nil {
		return nil, err
	}
	bc := doc.Blockchain(ch.Name)
	if bc == nil {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrNoCompatibleRelease, ch.Name)
	}

	var best *Release
	for i := range doc.Releases {
		rel := &doc.Releases[i]
		if rel.Channel != ch.Name {
			continue
		}
		if !bc.Compatible(rel.SemVer()) {
			continue
		}
		if _, ok := rel.Artifacts[r.Platform]; !ok {
			continue
		}
		if ch.Dated() && !rel.Date().Equal(ch.Date) {
			continue
		}
		// Equal publish dates fall to the higher version via Less.
		if best == nil || best.Less(rel) {
			best = rel
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: channel %s, platform %s", ErrNoCompatibleRelease, ch, r.Platform)
	}

	res := &Resolved{
		Channel:    ch,
		Version:    best.SemVer(),
		Release:    best,
		Blockchain: bc,
	}
	res.Installed, err = r.findInstalled(ch.Name, best.Version)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Resolver) resolveExact(ch version.Channel, c version.Constraint) (*Resolved, error) {
	want := c.Version()
	res := &Resolved{Channel: ch, Version: want}

	installed, err := r.findInstalled(ch.Name, want.String())
	if err != nil {
		return nil, err
	}
	res.Installed = installed

	// The index may legitimately be absent when working offline against an
	// installed release; it is only an error when nothing satisfies the
	// version at all.
	doc, docErr := r.Index.Current()
	if docErr == nil {
		res.Blockchain = doc.Blockchain(ch.Name)
		for i := range doc.Releases {
			rel := &doc.Releases[i]
			if rel.Channel == ch.Name && rel.SemVer().EQ(want) {
				if _, ok := rel.Artifacts[r.Platform]; !ok {
					return nil, fmt.Errorf("%w: version %s has no artifact for %s", ErrNoCompatibleRelease, want, r.Platform)
				}
				res.Release = rel
				return res, nil
			}
		}
	}

	if installed != nil {
		return res, nil
	}
	return nil, fmt.Errorf("%w: %s (channel %s)", ErrNoSuchVersion, want, ch.Name)
}

func (r *Resolver) installedDefault(ch version.Channel) (*Resolved, error) {
	ver, err := r.Home.DefaultVersion(ch.Name)
	if err != nil || ver == "" {
		return nil, err
	}
	installed, err := r.findInstalled(ch.Name, ver)
	if err != nil || installed == nil {
		return nil, err
	}
	v, err := version.Parse(ver)
	if err != nil {
		return nil, err
	}
	res := &Resolved{Channel: ch, Version: v, Installed: installed}
	if doc, err := r.Index.Current(); err == nil {
		res.Blockchain = doc.Blockchain(ch.Name)
	}
	return res, nil
}

func (r *Resolver) findInstalled(channel, ver string) (*home.InstalledRelease, error) {
	releases, err := r.Home.InstalledReleases()
	if err != nil {
		return nil, err
	}
	for i := range releases {
		if releases[i].Channel == channel && releases[i].Version == ver {
			return &releases[i], nil
		}
	}
	return nil, nil
}
