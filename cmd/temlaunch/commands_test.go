package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/temlaunch/temlaunch/internal/launcher"
	"github.com/temlaunch/temlaunch/internal/profile"
)

const engineINI = "[SystemSettings]\r\nResX=800\r\nResY=600\r\nFullscreen=False\r\n"

type testDirs struct {
	game, config, mods, data string
}

// setupEnv points every config key at temporary directories.
func setupEnv(t *testing.T) testDirs {
	t.Helper()
	root := t.TempDir()
	d := testDirs{
		game:   filepath.Join(root, "game"),
		config: filepath.Join(root, "Config"),
		mods:   filepath.Join(root, "mods"),
		data:   filepath.Join(root, "data"),
	}
	for _, dir := range []string{d.game, d.config, d.mods} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(d.config, "GridEngine.ini"), []byte(engineINI), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "xdg-config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "xdg-data"))
	t.Setenv("TEMLAUNCH_GAME_INSTALL_PATH", d.game)
	t.Setenv("TEMLAUNCH_GAME_CONFIG_PATH", d.config)
	t.Setenv("TEMLAUNCH_MODS_DIR", d.mods)
	t.Setenv("TEMLAUNCH_STORAGE_DATA_DIR", d.data)
	t.Setenv("TEMLAUNCH_LOG_LEVEL", "error")
	t.Setenv("TEMLAUNCH_UPDATES_CHECK", "disabled")
	return d
}

func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the CLI and returns stdout and the status helpers' output.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, status bytes.Buffer
	oldStatus := statusOut
	statusOut = &status
	defer func() { statusOut = oldStatus }()

	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), status.String(), err
}

func mustExecute(t *testing.T, args ...string) (string, string) {
	t.Helper()
	out, status, err := execute(t, args...)
	if err != nil {
		t.Fatalf("temlaunch %s: %v", strings.Join(args, " "), err)
	}
	return out, status
}

// --- fakes ---

type fakeProcess struct{ code int }

func (p fakeProcess) Wait() (int, error) { return p.code, nil }

type fakeStarter struct {
	mu      sync.Mutex
	started []string
}

func (s *fakeStarter) Start(_ context.Context, exe string) (launcher.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, exe)
	return fakeProcess{code: 0}, nil
}

func useFakeStarter(t *testing.T) *fakeStarter {
	t.Helper()
	fs := &fakeStarter{}
	old := newStarter
	newStarter = func() launcher.Starter { return fs }
	t.Cleanup(func() { newStarter = old })
	return fs
}

// --- tests ---

func TestVersionCommand(t *testing.T) {
	out, _ := mustExecute(t, "version")
	if out != "temlaunch dev\n" {
		t.Errorf("out = %q", out)
	}
}

func TestProfileLifecycle(t *testing.T) {
	setupEnv(t)

	mustExecute(t, "profile", "add", "Main")
	mustExecute(t, "profile", "add", "Windowed", "--windowed", "--width", "1280", "--height", "720", "--xdead")

	out, _ := mustExecute(t, "profile", "list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("list output:\n%s", out)
	}
	if !strings.HasPrefix(lines[0], "* Main") || !strings.HasSuffix(lines[0], "1920x1080 fullscreen, tem") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "  Windowed") || !strings.HasSuffix(lines[1], "1280x720 windowed, tem+xdead") {
		t.Errorf("line 1 = %q", lines[1])
	}

	mustExecute(t, "profile", "default", "Windowed")
	out, _ = mustExecute(t, "profile", "show")
	var shown profile.Profile
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("show output is not JSON: %v\n%s", err, out)
	}
	if shown.Name != "Windowed" || !shown.IsDefault || shown.IsFullscreen {
		t.Errorf("default profile = %+v", shown)
	}

	out, _ = mustExecute(t, "profile", "list", "--sort", "name-desc")
	if !strings.HasPrefix(out, "* Windowed") {
		t.Errorf("name-desc list:\n%s", out)
	}

	mustExecute(t, "profile", "rm", "Main")
	out, _ = mustExecute(t, "profile", "list")
	if strings.Contains(out, "Main") {
		t.Errorf("Main still listed:\n%s", out)
	}
}

func TestProfileAdd_Duplicate(t *testing.T) {
	setupEnv(t)
	mustExecute(t, "profile", "add", "Main")

	_, _, err := execute(t, "profile", "add", "Main")
	if !errors.Is(err, profile.ErrDuplicateName) {
		t.Errorf("err = %v, want ErrDuplicateName", err)
	}
}

func TestProfileSet_OnlyChangedFlags(t *testing.T) {
	setupEnv(t)
	mustExecute(t, "profile", "add", "Main", "--width", "2560", "--height", "1440")
	mustExecute(t, "profile", "set", "Main", "--splash", "--name", "Renamed")

	out, _ := mustExecute(t, "profile", "show", "Renamed")
	var p profile.Profile
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatal(err)
	}
	if p.WindowWidth != 2560 || p.WindowHeight != 1440 || p.DisableSplashScreen || !p.UseTEM {
		t.Errorf("profile = %+v", p)
	}
}

func TestProfileSet_InvalidSize(t *testing.T) {
	setupEnv(t)
	mustExecute(t, "profile", "add", "Main")

	if _, _, err := execute(t, "profile", "set", "Main", "--width", "0"); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestRewriteCommand(t *testing.T) {
	d := setupEnv(t)
	mustExecute(t, "profile", "add", "Main", "--width", "2560", "--height", "1440")

	_, status := mustExecute(t, "rewrite")
	if !strings.Contains(status, "3 rewritten") {
		t.Errorf("status = %q", status)
	}

	live, err := os.ReadFile(filepath.Join(d.config, "GridEngine.ini"))
	if err != nil {
		t.Fatal(err)
	}
	want := "[SystemSettings]\r\nResX=2560\r\nResY=1440\r\nFullscreen=True\r\n"
	if string(live) != want {
		t.Errorf("GridEngine.ini = %q, want %q", live, want)
	}
	if _, err := os.Stat(filepath.Join(d.config, "GridEngine.backup.ini")); err != nil {
		t.Errorf("backup missing: %v", err)
	}
}

func TestLaunchCommand(t *testing.T) {
	d := setupEnv(t)
	starter := useFakeStarter(t)

	temDir := filepath.Join(d.mods, "tem")
	if err := os.MkdirAll(temDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"dinput8.dll", "patch.dat", "tem.dll"} {
		if err := os.WriteFile(filepath.Join(temDir, f), []byte(f), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	mustExecute(t, "profile", "add", "Main")
	_, status := mustExecute(t, "launch")

	if len(starter.started) != 1 || starter.started[0] != filepath.Join(d.game, "GridGame.exe") {
		t.Errorf("started = %v", starter.started)
	}
	if _, err := os.Stat(filepath.Join(d.game, "tem.dll")); err != nil {
		t.Errorf("tem.dll not installed: %v", err)
	}
	if !strings.Contains(status, "Game exited with code 0") {
		t.Errorf("status = %q", status)
	}
}

func TestLaunchCommand_NoProfiles(t *testing.T) {
	setupEnv(t)
	useFakeStarter(t)

	_, _, err := execute(t, "launch")
	if err == nil || !strings.Contains(err.Error(), "no default profile") {
		t.Errorf("err = %v", err)
	}
}

func TestLaunchCommand_UnknownProfile(t *testing.T) {
	setupEnv(t)
	useFakeStarter(t)

	_, _, err := execute(t, "launch", "Ghost")
	if err == nil || !strings.Contains(err.Error(), `"Ghost" not found`) {
		t.Errorf("err = %v", err)
	}
}

func TestConsoleCommand(t *testing.T) {
	setupEnv(t)

	out, _ := mustExecute(t, "console", "echo", "hello", "grid")
	if out != "hello grid\n" {
		t.Errorf("echo = %q", out)
	}
	out, _ = mustExecute(t, "console", "ua")
	if out != "TEM Launcher dev\n" {
		t.Errorf("ua = %q", out)
	}
}

func TestModsStatus(t *testing.T) {
	d := setupEnv(t)
	if err := os.MkdirAll(filepath.Join(d.mods, "tem"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(d.mods, "tem", "release.txt"), []byte("tem-1.2.0.zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _ := mustExecute(t, "mods", "status")
	if !strings.Contains(out, "tem: 1.2.0, not installed") {
		t.Errorf("missing tem line:\n%s", out)
	}
	if !strings.Contains(out, "xdead: not downloaded, not installed") {
		t.Errorf("missing xdead line:\n%s", out)
	}
}

func TestConfigShow(t *testing.T) {
	d := setupEnv(t)

	out, _ := mustExecute(t, "config", "show")
	if !strings.Contains(out, "server.port = 4310") {
		t.Errorf("missing server.port:\n%s", out)
	}
	if !strings.Contains(out, "game.config_path = "+d.config) {
		t.Errorf("missing game.config_path:\n%s", out)
	}
}

func TestConfigSet(t *testing.T) {
	setupEnv(t)

	mustExecute(t, "config", "set", "profiles.sort", "name-asc")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Profiles.Sort != "name-asc" {
		t.Errorf("profiles.sort = %q", cfg.Profiles.Sort)
	}

	if _, _, err := execute(t, "config", "set", "updates.check", "sometimes"); err == nil {
		t.Error("expected error for invalid updates.check")
	}
}

func TestConfigUnset(t *testing.T) {
	setupEnv(t)

	mustExecute(t, "config", "set", "profiles.sort", "name-desc")
	mustExecute(t, "config", "unset", "profiles.sort")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Profiles.Sort != "createdAt-asc" {
		t.Errorf("profiles.sort = %q, want default", cfg.Profiles.Sort)
	}
}

func TestConfigSet_GitHubTokenInDataDir(t *testing.T) {
	d := setupEnv(t)

	mustExecute(t, "config", "set", "github.token", "gh-secret")
	data, err := os.ReadFile(filepath.Join(d.data, "secrets.json"))
	if err != nil {
		t.Fatalf("secrets not stored in data dir: %v", err)
	}
	if !strings.Contains(string(data), "gh-secret") {
		t.Errorf("secrets.json = %s", data)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

// --- API client ---

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Auth:   r.Header.Get("Authorization"),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func useAPIClient(t *testing.T, c *apiClient) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return c, nil }
	t.Cleanup(func() { newAPIClient = old })
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	resp, err := client.get(context.Background(), "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(context.Background(), "/launches")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestStatusCommand_Running(t *testing.T) {
	setupEnv(t)
	ts := newTestServer(t, map[string]string{
		"GET /health":   `{"status":"ok"}`,
		"GET /launches": `{"running":false,"launches":[{"ProfileName":"Main","StartedAt":"2025-03-01T12:00:00Z","FinishedAt":"2025-03-01T13:00:00Z","ExitCode":0}]}`,
	})
	useAPIClient(t, ts.client())

	_, status := mustExecute(t, "status")
	if !strings.Contains(status, "Server: running on port 4310") {
		t.Errorf("status = %q", status)
	}
	if !strings.Contains(status, "Last launch: Main at") || !strings.Contains(status, "(exit 0)") {
		t.Errorf("status = %q", status)
	}
	if ts.requests[1].Path != "/launches?limit=1" {
		t.Errorf("second request = %q", ts.requests[1].Path)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	setupEnv(t)
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()
	useAPIClient(t, ts.client())

	_, status := mustExecute(t, "status")
	if !strings.Contains(status, "Server: stopped") {
		t.Errorf("status = %q", status)
	}
}

func TestDescribeLaunch(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		l    launchSummary
		want string
	}{
		{launchSummary{ProfileName: "Main", StartedAt: start}, "(running)"},
		{launchSummary{ProfileName: "Main", StartedAt: start, FinishedAt: start.Add(time.Hour), ExitCode: 2, Error: "crashed"}, "(exit 2: crashed)"},
		{launchSummary{ProfileName: "Main", StartedAt: start, FinishedAt: start.Add(time.Hour)}, "(exit 0)"},
	}
	for _, tt := range tests {
		if got := describeLaunch(tt.l); !strings.HasPrefix(got, "Main at ") || !strings.HasSuffix(got, tt.want) {
			t.Errorf("describeLaunch(%+v) = %q, want suffix %q", tt.l, got, tt.want)
		}
	}
}
