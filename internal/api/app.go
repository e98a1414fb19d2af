package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/temlaunch/temlaunch/internal/console"
	"github.com/temlaunch/temlaunch/internal/launcher"
	"github.com/temlaunch/temlaunch/internal/mods"
	"github.com/temlaunch/temlaunch/internal/profile"
	"github.com/temlaunch/temlaunch/internal/storage"
	"github.com/temlaunch/temlaunch/internal/updates"
)

const maxRequestBodySize = 1 << 20 // 1MB

// GameLauncher runs a profile. Implemented by launcher.Launcher.
type GameLauncher interface {
	Start(ctx context.Context, p profile.Profile, done func(launcher.Result, error)) error
	Running() bool
}

// ModInspector reports installed mods. Implemented by mods.Installer.
type ModInspector interface {
	Status() mods.Status
}

type AppDeps struct {
	Store    *storage.Store
	Profiles *profile.Manager
	Launcher GameLauncher
	Console  *console.Console
	Mods     ModInspector
	ModNames []string // mods with a configured release repository
	Sort     profile.SortOption
	Token    string
	Logger   *slog.Logger
}

// NewAppHandler returns the launcher's local HTTP API. Everything except
// /health requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/profiles", handleListProfiles(deps))
		r.Post("/profiles", handleCreateProfile(deps))
		r.Get("/profiles/{id}", handleGetProfile(deps))
		r.Put("/profiles/{id}", handleUpdateProfile(deps))
		r.Delete("/profiles/{id}", handleDeleteProfile(deps))
		r.Post("/profiles/{id}/default", handleSetDefault(deps))
		r.Post("/profiles/{id}/launch", handleLaunch(deps))

		r.Post("/console", handleConsole(deps))
		r.Get("/console/logs", handleConsoleLogs(deps))

		r.Get("/mods", handleMods(deps))
		r.Post("/mods/update", handleModUpdate(deps))

		r.Get("/launches", handleLaunches(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListProfiles(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sortOpt := deps.Sort
		if s := r.URL.Query().Get("sort"); s != "" {
			opt, err := profile.ParseSort(s)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			sortOpt = opt
		}

		profiles, err := deps.Profiles.List(sortOpt)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list profiles: %v", err)
			return
		}
		if profiles == nil {
			profiles = []profile.Profile{}
		}
		writeJSON(w, http.StatusOK, profiles)
	}
}

func handleCreateProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		p := profile.New("")
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		created, err := deps.Profiles.Create(p)
		if err != nil {
			profileError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Profiles.Get(chi.URLParam(r, "id"))
		if err != nil {
			profileError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// handleUpdateProfile applies the request body over the stored profile, so
// omitted fields keep their values.
func handleUpdateProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		id := chi.URLParam(r, "id")
		p, err := deps.Profiles.Get(id)
		if err != nil {
			profileError(w, err)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		p.ID = id

		updated, err := deps.Profiles.Update(p)
		if err != nil {
			profileError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func handleDeleteProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Profiles.Delete(chi.URLParam(r, "id")); err != nil {
			profileError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleSetDefault(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Profiles.SetDefault(chi.URLParam(r, "id")); err != nil {
			profileError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleLaunch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Profiles.Get(chi.URLParam(r, "id"))
		if err != nil {
			profileError(w, err)
			return
		}
		if err := startLaunch(deps.Launcher, p, deps.Logger); err != nil {
			httpError(w, http.StatusConflict, "conflict_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "launching", "profile": p.Name})
	}
}

// startLaunch runs p in the background. The launch outlives the request; a
// launch already in progress is reported before this returns.
func startLaunch(l GameLauncher, p profile.Profile, logger *slog.Logger) error {
	if l == nil {
		return errors.New("launcher not available")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return l.Start(context.Background(), p, func(res launcher.Result, err error) {
		if err != nil {
			logger.Error("launch failed", "profile", p.Name, "error", err)
			return
		}
		logger.Info("game exited", "profile", p.Name, "exit_code", res.ExitCode)
	})
}

type consoleRequest struct {
	Command string `json:"command"`
}

func handleConsole(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req consoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"output": deps.Console.Execute(req.Command)})
	}
}

func handleConsoleLogs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := []console.Entry{}
		if buf := deps.Console.Buffer(); buf != nil {
			entries = append(entries, buf.Entries()...)
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

type modsResponse struct {
	Installed mods.Status          `json:"installed"`
	Releases  []storage.ModRelease `json:"releases"`
}

func handleMods(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		releases, err := deps.Store.ListModReleases()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list mod releases: %v", err)
			return
		}
		resp := modsResponse{Releases: releases}
		if resp.Releases == nil {
			resp.Releases = []storage.ModRelease{}
		}
		if deps.Mods != nil {
			resp.Installed = deps.Mods.Status()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleModUpdate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := updates.Enqueue(deps.Store, deps.ModNames...)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to queue updates: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "jobs": ids})
	}
}

func handleLaunches(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		launches, err := deps.Store.RecentLaunches(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list launches: %v", err)
			return
		}
		if launches == nil {
			launches = []storage.Launch{}
		}
		running := deps.Launcher != nil && deps.Launcher.Running()
		writeJSON(w, http.StatusOK, map[string]any{"running": running, "launches": launches})
	}
}

func profileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "profile not found")
	case errors.Is(err, profile.ErrNameRequired):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, profile.ErrDuplicateName):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
