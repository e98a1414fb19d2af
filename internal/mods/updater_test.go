package mods

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeRelease struct {
	TagName    string      `json:"tag_name"`
	Prerelease bool        `json:"prerelease"`
	Draft      bool        `json:"draft"`
	Assets     []fakeAsset `json:"assets"`
}

type fakeAsset struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type recorder struct {
	mu   sync.Mutex
	got  map[string]string
	fail error
}

func (r *recorder) SetModRelease(mod, asset, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	if r.got == nil {
		r.got = map[string]string{}
	}
	r.got[mod] = asset + "@" + version
	return nil
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeGitHub serves releases and assets for repos keyed by "owner/repo".
type fakeGitHub struct {
	releases  map[string][]fakeRelease
	assets    map[int64][]byte
	downloads atomic.Int32
	userAgent atomic.Value
}

func (f *fakeGitHub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{repo}/releases", func(w http.ResponseWriter, r *http.Request) {
		f.userAgent.Store(r.Header.Get("User-Agent"))
		rels, ok := f.releases[r.PathValue("owner")+"/"+r.PathValue("repo")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rels)
	})
	mux.HandleFunc("GET /repos/{owner}/{repo}/releases/assets/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		data, ok := f.assets[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		f.downloads.Add(1)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestUpdater(t *testing.T, srv *httptest.Server, modsDir string, rec ReleaseRecorder, allowPre bool) *Updater {
	t.Helper()
	u, err := NewUpdater(UpdaterConfig{
		ModsDir:         modsDir,
		Repos:           map[string]string{TEM: "NeKzor/tem", XDead: "someone/xdead"},
		AllowPrerelease: allowPre,
		UserAgent:       UserAgent("1.0.0"),
		BaseURL:         srv.URL,
	}, rec, nil)
	if err != nil {
		t.Fatalf("NewUpdater: %v", err)
	}
	return u
}

func temFake(t *testing.T) *fakeGitHub {
	return &fakeGitHub{
		releases: map[string][]fakeRelease{
			"NeKzor/tem": {
				{TagName: "1.1.0-beta", Prerelease: true, Assets: []fakeAsset{{ID: 2, Name: "tem-1.1.0-beta.zip"}}},
				{TagName: "1.0.0", Assets: []fakeAsset{{ID: 1, Name: "tem-1.0.0.zip"}}},
			},
			"someone/xdead": {
				{TagName: "0.3", Assets: []fakeAsset{{ID: 3, Name: "xdead-0.3.zip"}}},
			},
		},
		assets: map[int64][]byte{
			1: zipOf(t, map[string]string{"dinput8.dll": "d1", "patch.dat": "p1", "tem.dll": "t1", "README.md": "x"}),
			2: zipOf(t, map[string]string{"tem/dinput8.dll": "d2", "tem/patch.dat": "p2", "tem/tem.dll": "t2"}),
			3: zipOf(t, map[string]string{"xlive.dll": "x3"}),
		},
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestUpdate_InstallsLatestPrerelease(t *testing.T) {
	fake := temFake(t)
	srv := fake.server(t)
	modsDir := t.TempDir()
	rec := &recorder{}
	u := newTestUpdater(t, srv, modsDir, rec, true)

	res, err := u.Update(context.Background(), TEM)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := Result{Mod: TEM, Asset: "tem-1.1.0-beta.zip", Version: "1.1.0-beta", Updated: true}
	if res != want {
		t.Errorf("Result = %+v, want %+v", res, want)
	}

	dir := filepath.Join(modsDir, TEM)
	if got := readFile(t, filepath.Join(dir, "tem.dll")); got != "t2" {
		t.Errorf("tem.dll = %q, want t2", got)
	}
	if got := readFile(t, filepath.Join(dir, "release.txt")); got != "tem-1.1.0-beta.zip" {
		t.Errorf("release.txt = %q", got)
	}
	if rec.got[TEM] != "tem-1.1.0-beta.zip@1.1.0-beta" {
		t.Errorf("recorded = %q", rec.got[TEM])
	}
	if ua, _ := fake.userAgent.Load().(string); ua != "TEM Launcher 1.0.0" {
		t.Errorf("User-Agent = %q", ua)
	}
}

func TestUpdate_SkipsPrereleaseWhenDisallowed(t *testing.T) {
	srv := temFake(t).server(t)
	modsDir := t.TempDir()
	u := newTestUpdater(t, srv, modsDir, nil, false)

	res, err := u.Update(context.Background(), TEM)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Asset != "tem-1.0.0.zip" {
		t.Errorf("Asset = %q, want tem-1.0.0.zip", res.Asset)
	}
	if _, err := os.Stat(filepath.Join(modsDir, TEM, "README.md")); !os.IsNotExist(err) {
		t.Error("files outside the mod should not be extracted")
	}
}

func TestUpdate_AlreadyLatest(t *testing.T) {
	fake := temFake(t)
	srv := fake.server(t)
	modsDir := t.TempDir()
	u := newTestUpdater(t, srv, modsDir, nil, true)

	if _, err := u.Update(context.Background(), TEM); err != nil {
		t.Fatalf("first Update: %v", err)
	}
	res, err := u.Update(context.Background(), TEM)
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if res.Updated {
		t.Error("second Update should report no change")
	}
	if n := fake.downloads.Load(); n != 1 {
		t.Errorf("downloads = %d, want 1", n)
	}
}

func TestUpdate_NoRelease(t *testing.T) {
	fake := &fakeGitHub{releases: map[string][]fakeRelease{
		"NeKzor/tem": {{TagName: "beta", Prerelease: true, Assets: []fakeAsset{{ID: 1, Name: "tem-beta.zip"}}}},
	}}
	u := newTestUpdater(t, fake.server(t), t.TempDir(), nil, false)

	if _, err := u.Update(context.Background(), TEM); !errors.Is(err, ErrNoRelease) {
		t.Errorf("error = %v, want ErrNoRelease", err)
	}
}

func TestUpdate_NoAsset(t *testing.T) {
	fake := &fakeGitHub{releases: map[string][]fakeRelease{"NeKzor/tem": {{TagName: "1.0"}}}}
	u := newTestUpdater(t, fake.server(t), t.TempDir(), nil, true)

	if _, err := u.Update(context.Background(), TEM); !errors.Is(err, ErrNoAsset) {
		t.Errorf("error = %v, want ErrNoAsset", err)
	}
}

func TestUpdate_RecorderFailureKeepsMarker(t *testing.T) {
	srv := temFake(t).server(t)
	modsDir := t.TempDir()
	u := newTestUpdater(t, srv, modsDir, &recorder{fail: errors.New("db down")}, true)

	if _, err := u.Update(context.Background(), TEM); err == nil {
		t.Fatal("expected error from recorder")
	}
	if got, _ := ReadRelease(modsDir, TEM); got != "tem-1.1.0-beta.zip" {
		t.Errorf("release marker = %q", got)
	}
}

func TestUpdateAll(t *testing.T) {
	srv := temFake(t).server(t)
	modsDir := t.TempDir()
	rec := &recorder{}
	u := newTestUpdater(t, srv, modsDir, rec, true)

	results, err := u.UpdateAll(context.Background())
	if err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	if len(results) != 2 || results[0].Mod != TEM || results[1].Mod != XDead {
		t.Fatalf("results = %+v", results)
	}
	if got := readFile(t, filepath.Join(modsDir, XDead, "xlive.dll")); got != "x3" {
		t.Errorf("xlive.dll = %q", got)
	}
	if rec.got[XDead] != "xdead-0.3.zip@0.3" {
		t.Errorf("recorded xdead = %q", rec.got[XDead])
	}
}

func TestMods_SkipsUnconfigured(t *testing.T) {
	u, err := NewUpdater(UpdaterConfig{Repos: map[string]string{TEM: "NeKzor/tem"}}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := u.Mods(); len(got) != 1 || got[0] != TEM {
		t.Errorf("Mods() = %v, want [tem]", got)
	}
	if _, err := u.Update(context.Background(), XDead); err == nil {
		t.Error("expected error for mod without repository")
	}
	if _, err := u.Update(context.Background(), "other"); err == nil {
		t.Error("expected error for unknown mod")
	}
}

func TestVersion(t *testing.T) {
	tests := map[string]string{
		"tem-1.2.0.zip":   "1.2.0",
		"xdead-0.3.zip":   "0.3",
		"tem-beta":        "beta",
		"something.zip":   "something",
		"tem-xdead-1.zip": "xdead-1",
	}
	for in, want := range tests {
		if got := Version(in); got != want {
			t.Errorf("Version(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReadRelease_Missing(t *testing.T) {
	got, err := ReadRelease(t.TempDir(), TEM)
	if err != nil || got != "" {
		t.Errorf("ReadRelease = %q, %v; want empty", got, err)
	}
}

func TestReadZipFile_Limit(t *testing.T) {
	data := zipOf(t, map[string]string{"tem.dll": "0123456789"})
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}

	got, err := readZipFile(zr.File[0], 10)
	if err != nil || string(got) != "0123456789" {
		t.Errorf("readZipFile at limit = %q, %v", got, err)
	}
	if got, err := readZipFile(zr.File[0], 9); err == nil {
		t.Errorf("readZipFile over limit = %q, want error", got)
	}
}
