package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/blackwell-systems/nixbrew/internal/cache"
	"github.com/blackwell-systems/nixbrew/internal/config"
	"github.com/blackwell-systems/nixbrew/internal/descriptor"
	"github.com/blackwell-systems/nixbrew/internal/flake"
	"github.com/blackwell-systems/nixbrew/internal/nix"
	"github.com/blackwell-systems/nixbrew/internal/output"
	"github.com/blackwell-systems/nixbrew/internal/registry"
	"github.com/blackwell-systems/nixbrew/internal/resolve"
	"github.com/blackwell-systems/nixbrew/internal/rollback"
)

var (
	// ErrInvalidPackage means a package name cannot be used as a nixpkgs
	// attribute path.
	ErrInvalidPackage = errors.New("invalid package name")

	// ErrCacheUnavailable means the resolution cache could not be opened.
	ErrCacheUnavailable = errors.New("resolution cache is unavailable")
)

// packageNameRE accepts nixpkgs attribute paths such as "ripgrep",
// "python3Packages.requests" or "gnome.gnome-tweaks".
var packageNameRE = regexp.MustCompile(`^[A-Za-z0-9_+][A-Za-z0-9_+'-]*(\.[A-Za-z0-9_+][A-Za-z0-9_+'-]*)*$`)

// profileManager changes the user's nix profile.
type profileManager interface {
	Replace(ctx context.Context, pkg, installable string) error
	Remove(ctx context.Context, pkg string) error
}

// nixTools are the nix operations outside the profile.
type nixTools interface {
	Search(ctx context.Context, source, query string) ([]nix.SearchResult, error)
	PinRegistry(ctx context.Context, source string) error
	LockFlake(ctx context.Context, dir string) error
}

// engine orchestrates one command: resolve, run nix, commit the registry,
// then render the flake.
type engine struct {
	cfg      config.Config
	aliases  *config.AliasConfig
	resolver *resolve.Resolver
	registry *registry.Store
	history  *rollback.Manager
	cache    *cache.Store
	profile  profileManager
	tools    nixTools
	logger   *slog.Logger
	out      io.Writer
	errOut   io.Writer
	now      func() time.Time
}

// newEngine wires the real collaborators from cfg. A cache that cannot be
// opened is skipped with a warning.
func newEngine(cfg config.Config, aliases *config.AliasConfig, logger *slog.Logger, out, errOut io.Writer) (*engine, error) {
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	runner := nix.NewRunner()
	runner.Stdout = errOut
	runner.Stderr = errOut
	lookup := nix.NewLookup(runner)

	opts := []resolve.Option{
		resolve.WithChannels(cfg.ChannelList()),
		resolve.WithDefaultChannel(cfg.DefaultChannel),
		resolve.WithTieBreak(cfg.TieBreakPolicy()),
		resolve.WithUpstream(cfg.Upstream),
		resolve.WithTTL(cfg.CacheTTL),
		resolve.WithTimeout(cfg.LookupTimeout),
		resolve.WithRetry(cfg.RetryPolicy()),
		resolve.WithLogger(logger),
	}

	c, err := cache.Open(cfg.CachePath())
	if err != nil {
		logger.Warn("resolution cache disabled", "path", cfg.CachePath(), "error", err)
		c = nil
	} else {
		opts = append(opts, resolve.WithCache(c))
	}

	reg := registry.New(cfg.RegistryPath())
	return &engine{
		cfg:      cfg,
		aliases:  aliases,
		resolver: resolve.New(lookup, opts...),
		registry: reg,
		history:  rollback.New(reg),
		cache:    c,
		profile:  nix.NewProfile(runner),
		tools:    lookup,
		logger:   logger,
		out:      out,
		errOut:   errOut,
		now:      time.Now,
	}, nil
}

// Close releases the cache database.
func (e *engine) Close() error {
	if e.cache != nil {
		return e.cache.Close()
	}
	return nil
}

// packageName applies aliases and validates the result.
func (e *engine) packageName(name string) (string, error) {
	pkg := e.aliases.Resolve(strings.TrimSpace(name))
	if !packageNameRE.MatchString(pkg) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPackage, name)
	}
	return pkg, nil
}

// resolve runs the resolver behind a spinner.
func (e *engine) resolve(ctx context.Context, pkg string, d descriptor.Descriptor) (resolve.ResolvedReference, error) {
	if d.Ambiguous() {
		e.logger.Info("version not recognized as semver or commit, treating it as a channel", "input", d.Raw())
	}

	what := pkg
	if d.Kind() != descriptor.Unspecified {
		what += " " + d.Raw()
	}
	spinner := output.NewSpinner("Resolving " + what)
	spinner.SetWriter(e.errOut)
	spinner.Start()
	ref, err := e.resolver.Resolve(ctx, pkg, d)
	spinner.Stop()
	return ref, err
}

// writeFlake renders the package flake. The registry is already committed,
// so a failure is reported but does not fail the command.
func (e *engine) writeFlake(pkg string, ref resolve.ResolvedReference) {
	path, err := flake.Write(e.cfg.FlakeDir(), pkg, ref)
	if err != nil {
		e.logger.Warn("flake not updated", "package", pkg, "error", err)
		fmt.Fprintf(e.errOut, "Warning: %v\n", err)
		return
	}
	e.logger.Debug("flake written", "package", pkg, "path", path)
}

// commit applies ref to the profile and records it. Nothing is recorded
// when nix fails.
func (e *engine) commit(ctx context.Context, pkg string, ref resolve.ResolvedReference, action registry.Action) (*registry.Record, error) {
	if err := e.profile.Replace(ctx, pkg, ref.Installable()); err != nil {
		return nil, err
	}
	rec, err := e.registry.Upsert(pkg, ref, action)
	if err != nil {
		return nil, err
	}
	e.writeFlake(pkg, ref)
	return rec, nil
}

// Install resolves version (nil for latest) and installs pkg at it.
func (e *engine) Install(ctx context.Context, name string, version *string) (resolve.ResolvedReference, error) {
	pkg, err := e.packageName(name)
	if err != nil {
		return resolve.ResolvedReference{}, err
	}

	ref, err := e.resolve(ctx, pkg, descriptor.ParseOptional(version))
	if err != nil {
		return resolve.ResolvedReference{}, err
	}
	if _, err := e.commit(ctx, pkg, ref, registry.ActionInstall); err != nil {
		return resolve.ResolvedReference{}, err
	}
	return ref, nil
}

// Uninstall removes pkg from the profile and forgets its history.
func (e *engine) Uninstall(ctx context.Context, name string) error {
	pkg, err := e.packageName(name)
	if err != nil {
		return err
	}

	_, regErr := e.registry.Get(pkg)
	if regErr != nil && !errors.Is(regErr, registry.ErrNotInstalled) {
		return regErr
	}
	tracked := regErr == nil

	if err := e.profile.Remove(ctx, pkg); err != nil {
		if !errors.Is(err, nix.ErrNotInProfile) || !tracked {
			return err
		}
		e.logger.Warn("package missing from nix profile, removing registry record only", "package", pkg)
	}

	if tracked {
		if err := e.registry.Remove(pkg); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(flake.Dir(e.cfg.FlakeDir(), pkg)); err != nil {
		e.logger.Warn("failed to remove flake directory", "package", pkg, "error", err)
	}
	return nil
}

// upgradeStatus describes what Upgrade did to one package.
type upgradeStatus int

const (
	upgradeApplied upgradeStatus = iota
	upgradeCurrent
	upgradeSkippedPinned
)

type upgradeResult struct {
	Package string
	From    resolve.ResolvedReference
	To      resolve.ResolvedReference
	Status  upgradeStatus
}

// Upgrade re-resolves pkg on the channel it was installed from (the default
// channel for commit installs) and installs the result if it changed.
// Pinned packages are left alone unless force is set.
func (e *engine) Upgrade(ctx context.Context, name string, force bool) (upgradeResult, error) {
	pkg, err := e.packageName(name)
	if err != nil {
		return upgradeResult{}, err
	}

	rec, err := e.registry.Get(pkg)
	if err != nil {
		return upgradeResult{}, err
	}
	res := upgradeResult{Package: pkg, From: rec.Current}
	if rec.Pinned && !force {
		res.Status = upgradeSkippedPinned
		return res, nil
	}

	d := descriptor.Parse("")
	if rec.Current.Channel != "" {
		d = descriptor.Parse(rec.Current.Channel)
	}
	ref, err := e.resolve(ctx, pkg, d)
	if err != nil {
		return res, err
	}
	res.To = ref

	if ref.Source == rec.Current.Source && ref.Version == rec.Current.Version {
		res.Status = upgradeCurrent
		return res, nil
	}
	if _, err := e.commit(ctx, pkg, ref, registry.ActionUpgrade); err != nil {
		return res, err
	}
	res.Status = upgradeApplied
	return res, nil
}

// UpgradeAll upgrades every registered package. A failure on one package
// does not stop the others; all failures are returned joined.
func (e *engine) UpgradeAll(ctx context.Context, force bool) ([]upgradeResult, error) {
	records, err := e.registry.All()
	if err != nil {
		return nil, err
	}

	progress := output.NewProgress(len(records), "Upgrading packages")
	progress.SetWriter(e.errOut)

	var (
		results []upgradeResult
		errs    []error
	)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := e.Upgrade(ctx, rec.Name, force)
		progress.Increment()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.Name, err))
			continue
		}
		results = append(results, res)
	}
	progress.Finish()
	return results, errors.Join(errs...)
}

// Pin records pkg as pinned. With a version the package is first installed
// at that version; without one the current reference is pinned.
func (e *engine) Pin(ctx context.Context, name string, version *string) (resolve.ResolvedReference, error) {
	pkg, err := e.packageName(name)
	if err != nil {
		return resolve.ResolvedReference{}, err
	}

	if version == nil || strings.TrimSpace(*version) == "" {
		rec, err := e.registry.Get(pkg)
		if err != nil {
			return resolve.ResolvedReference{}, fmt.Errorf("%w (pass a version to install and pin it)", err)
		}
		if _, err := e.registry.Upsert(pkg, rec.Current, registry.ActionPin); err != nil {
			return resolve.ResolvedReference{}, err
		}
		return rec.Current, nil
	}

	ref, err := e.resolve(ctx, pkg, descriptor.Parse(*version))
	if err != nil {
		return resolve.ResolvedReference{}, err
	}
	if _, err := e.commit(ctx, pkg, ref, registry.ActionPin); err != nil {
		return resolve.ResolvedReference{}, err
	}
	return ref, nil
}

// Unpin clears the pinned flag.
func (e *engine) Unpin(name string) error {
	pkg, err := e.packageName(name)
	if err != nil {
		return err
	}
	_, err = e.registry.SetPinned(pkg, false)
	return err
}

// Rollback reinstalls the newest recorded reference of pkg at version.
func (e *engine) Rollback(ctx context.Context, name, version string) (resolve.ResolvedReference, error) {
	pkg, err := e.packageName(name)
	if err != nil {
		return resolve.ResolvedReference{}, err
	}

	reinstall := rollback.ReinstallFunc(func(ctx context.Context, ref resolve.ResolvedReference) error {
		return e.profile.Replace(ctx, pkg, ref.Installable())
	})
	ref, err := e.history.Rollback(ctx, pkg, version, reinstall)
	if err != nil {
		return resolve.ResolvedReference{}, err
	}
	e.writeFlake(pkg, ref)
	return ref, nil
}

// History returns pkg's recorded history. When nothing is recorded the
// versions currently offered by each channel are returned instead.
func (e *engine) History(ctx context.Context, name string) ([]registry.HistoryEntry, []resolve.ChannelVersion, error) {
	pkg, err := e.packageName(name)
	if err != nil {
		return nil, nil, err
	}

	entries, err := e.history.History(pkg)
	if err != nil {
		return nil, nil, err
	}
	if len(entries) > 0 {
		return entries, nil, nil
	}

	versions, err := e.resolver.Versions(ctx, pkg)
	if err != nil {
		return entries, nil, err
	}
	return entries, versions, nil
}

// Versions reports what every channel offers for pkg.
func (e *engine) Versions(ctx context.Context, name string) ([]resolve.ChannelVersion, error) {
	pkg, err := e.packageName(name)
	if err != nil {
		return nil, err
	}
	return e.resolver.Versions(ctx, pkg)
}

// List returns every registered package.
func (e *engine) List() ([]*registry.Record, error) {
	return e.registry.All()
}

// defaultSource is the branch source of the default channel.
func (e *engine) defaultSource() (string, error) {
	ch, ok := e.resolver.Channels().Find(e.cfg.DefaultChannel)
	if !ok {
		return "", fmt.Errorf("%w: %q", resolve.ErrChannelNotFound, e.cfg.DefaultChannel)
	}
	return e.cfg.Upstream + "/" + ch.Branch, nil
}

// Search queries the default channel.
func (e *engine) Search(ctx context.Context, query string) ([]nix.SearchResult, error) {
	source, err := e.defaultSource()
	if err != nil {
		return nil, err
	}
	return e.tools.Search(ctx, source, query)
}

// Update drops cached resolutions so the next command sees the channels'
// current state, and pins the user's nixpkgs registry entry to the default
// channel. It returns the number of cache entries dropped.
func (e *engine) Update(ctx context.Context) (int64, error) {
	var dropped int64
	if e.cache != nil {
		n, err := e.cache.Clear()
		if err != nil {
			return 0, err
		}
		dropped = n
	}

	source, err := e.defaultSource()
	if err != nil {
		return dropped, err
	}
	if err := e.tools.PinRegistry(ctx, source); err != nil {
		return dropped, err
	}
	return dropped, nil
}

// CreateFlake writes pkg's flake without touching the profile or registry.
// Without a version an installed package uses its current reference.
func (e *engine) CreateFlake(ctx context.Context, name string, version *string, lock bool) (string, error) {
	pkg, err := e.packageName(name)
	if err != nil {
		return "", err
	}

	var ref resolve.ResolvedReference
	rec, regErr := e.registry.Get(pkg)
	switch {
	case (version == nil || strings.TrimSpace(*version) == "") && regErr == nil:
		ref = rec.Current
	case regErr != nil && !errors.Is(regErr, registry.ErrNotInstalled):
		return "", regErr
	default:
		ref, err = e.resolve(ctx, pkg, descriptor.ParseOptional(version))
		if err != nil {
			return "", err
		}
	}

	path, err := flake.Write(e.cfg.FlakeDir(), pkg, ref)
	if err != nil {
		return "", err
	}
	if lock {
		if err := e.tools.LockFlake(ctx, flake.Dir(e.cfg.FlakeDir(), pkg)); err != nil {
			return path, err
		}
	}
	return path, nil
}

func (e *engine) requireCache() (*cache.Store, error) {
	if e.cache == nil {
		return nil, ErrCacheUnavailable
	}
	return e.cache, nil
}
