package mods

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/google/renameio/v2/maybe"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoRelease is returned when a repository has no usable release.
	ErrNoRelease = errors.New("no release found")
	// ErrNoAsset is returned when the selected release has no assets.
	ErrNoAsset = errors.New("no asset found")
)

// releaseFile names the installed asset of a mod inside its directory.
const releaseFile = "release.txt"

// maxAssetSize bounds how much of a release asset is read into memory.
const maxAssetSize = 64 << 20

// UserAgent is sent with every GitHub request.
func UserAgent(version string) string {
	return "TEM Launcher " + version
}

// Version derives a mod version from its release asset name,
// e.g. "tem-1.2.0.zip" becomes "1.2.0".
func Version(asset string) string {
	v := strings.TrimSuffix(asset, ".zip")
	for _, prefix := range []string{TEM + "-", XDead + "-"} {
		if strings.HasPrefix(v, prefix) {
			return strings.TrimPrefix(v, prefix)
		}
	}
	return v
}

// ReleaseRecorder stores the installed release of a mod.
// Implemented by storage.Store.
type ReleaseRecorder interface {
	SetModRelease(mod, asset, version string) error
}

// UpdaterConfig configures an Updater.
type UpdaterConfig struct {
	ModsDir         string
	Repos           map[string]string // mod → "owner/repo"; empty repos are skipped
	AllowPrerelease bool
	Token           string
	UserAgent       string
	BaseURL         string // GitHub API base URL; empty for api.github.com
}

// Result describes the outcome of updating one mod.
type Result struct {
	Mod     string `json:"mod"`
	Asset   string `json:"asset"`
	Version string `json:"version"`
	Updated bool   `json:"updated"`
}

// Updater fetches the latest release asset of each mod from GitHub and
// unpacks the mod files into the mods dir.
type Updater struct {
	client   *github.Client
	download *http.Client
	cfg      UpdaterConfig
	store    ReleaseRecorder
	logger   *slog.Logger
}

// NewUpdater builds an Updater. store may be nil.
func NewUpdater(cfg UpdaterConfig, store ReleaseRecorder, logger *slog.Logger) (*Updater, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := github.NewClient(&http.Client{Timeout: 30 * time.Second})
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.UserAgent != "" {
		client.UserAgent = cfg.UserAgent
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parsing GitHub base URL: %w", err)
		}
		client.BaseURL = u
	}

	return &Updater{
		client:   client,
		download: &http.Client{Timeout: 5 * time.Minute},
		cfg:      cfg,
		store:    store,
		logger:   logger,
	}, nil
}

// Mods returns the mods that have a repository configured, in install order.
func (u *Updater) Mods() []string {
	var out []string
	for _, mod := range []string{TEM, XDead} {
		if u.cfg.Repos[mod] != "" {
			out = append(out, mod)
		}
	}
	return out
}

// Update installs the newest release of mod unless release.txt already names it.
func (u *Updater) Update(ctx context.Context, mod string) (Result, error) {
	files := Files(mod)
	if files == nil {
		return Result{}, fmt.Errorf("unknown mod %q", mod)
	}
	owner, repo, err := splitRepo(u.cfg.Repos[mod])
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", mod, err)
	}

	asset, err := u.latestAsset(ctx, owner, repo)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", mod, err)
	}
	res := Result{Mod: mod, Asset: asset.GetName(), Version: Version(asset.GetName())}

	current, err := ReadRelease(u.cfg.ModsDir, mod)
	if err != nil {
		return Result{}, err
	}
	if current == res.Asset {
		u.logger.Info("already using latest release", "mod", mod, "asset", res.Asset)
		return res, nil
	}

	u.logger.Info("updating to latest release", "mod", mod, "from", current, "to", res.Asset)
	data, err := u.fetchAsset(ctx, owner, repo, asset.GetID())
	if err != nil {
		return Result{}, fmt.Errorf("downloading %s: %w", res.Asset, err)
	}

	dir := filepath.Join(u.cfg.ModsDir, mod)
	if err := extract(data, files, dir, u.logger); err != nil {
		return Result{}, fmt.Errorf("extracting %s: %w", res.Asset, err)
	}
	if err := maybe.WriteFile(filepath.Join(dir, releaseFile), []byte(res.Asset), 0o644); err != nil {
		return Result{}, fmt.Errorf("writing release marker: %w", err)
	}
	if u.store != nil {
		if err := u.store.SetModRelease(mod, res.Asset, res.Version); err != nil {
			return Result{}, fmt.Errorf("recording release: %w", err)
		}
	}

	res.Updated = true
	u.logger.Info("installed release", "mod", mod, "asset", res.Asset)
	return res, nil
}

// UpdateAll updates every configured mod concurrently. Results are in the
// order of Mods; on error the first failure is returned.
func (u *Updater) UpdateAll(ctx context.Context) ([]Result, error) {
	mods := u.Mods()
	results := make([]Result, len(mods))

	g, gctx := errgroup.WithContext(ctx)
	for i, mod := range mods {
		g.Go(func() error {
			r, err := u.Update(gctx, mod)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (u *Updater) latestAsset(ctx context.Context, owner, repo string) (*github.ReleaseAsset, error) {
	releases, _, err := u.client.Repositories.ListReleases(ctx, owner, repo, &github.ListOptions{PerPage: 20})
	if err != nil {
		return nil, fmt.Errorf("listing releases of %s/%s: %w", owner, repo, err)
	}
	for _, rel := range releases {
		if rel.GetDraft() || (rel.GetPrerelease() && !u.cfg.AllowPrerelease) {
			continue
		}
		if len(rel.Assets) == 0 {
			return nil, fmt.Errorf("release %s: %w", rel.GetTagName(), ErrNoAsset)
		}
		return rel.Assets[0], nil
	}
	return nil, ErrNoRelease
}

func (u *Updater) fetchAsset(ctx context.Context, owner, repo string, id int64) ([]byte, error) {
	rc, _, err := u.client.Repositories.DownloadReleaseAsset(ctx, owner, repo, id, u.download)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxAssetSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxAssetSize {
		return nil, fmt.Errorf("asset larger than %d bytes", maxAssetSize)
	}
	return data, nil
}

// extract writes the named files from the zip archive in data into dir.
// Files are matched by base name so archives with a top-level folder work.
func extract(data []byte, files []string, dir string, logger *slog.Logger) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	want := make(map[string]bool, len(files))
	for _, f := range files {
		want[f] = true
	}

	written := 0
	for _, zf := range zr.File {
		name := path.Base(zf.Name)
		if zf.FileInfo().IsDir() || !want[name] {
			continue
		}
		content, err := readZipFile(zf, maxAssetSize)
		if err != nil {
			return fmt.Errorf("reading %s: %w", zf.Name, err)
		}
		if err := maybe.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			return err
		}
		delete(want, name)
		written++
	}

	if written == 0 {
		return fmt.Errorf("archive contains none of %s", strings.Join(files, ", "))
	}
	for name := range want {
		logger.Warn("file missing from release asset", "file", name)
	}
	return nil
}

// readZipFile reads one archive entry, failing when it is larger than limit
// bytes rather than returning a truncated file.
func readZipFile(zf *zip.File, limit int64) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("entry larger than %d bytes", limit)
	}
	return data, nil
}

// ReadRelease returns the asset name recorded in the mod's release.txt,
// or "" when the mod has never been downloaded.
func ReadRelease(modsDir, mod string) (string, error) {
	data, err := os.ReadFile(filepath.Join(modsDir, mod, releaseFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s release: %w", mod, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func splitRepo(s string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q, want owner/repo", s)
	}
	return owner, repo, nil
}
