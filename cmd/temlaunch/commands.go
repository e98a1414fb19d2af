package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/temlaunch/temlaunch/internal/config"
	"github.com/temlaunch/temlaunch/internal/gridini"
	"github.com/temlaunch/temlaunch/internal/mods"
	"github.com/temlaunch/temlaunch/internal/profile"
	"github.com/temlaunch/temlaunch/internal/updates"
)

// --- launch ---

var launchCmd = &cobra.Command{
	Use:   "launch [profile]",
	Short: "Apply a profile and start the game",
	Long: `Apply a profile to GridEngine.ini, sync its mods into the game directory
and start the game. Without a profile name the default profile is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.findProfile(firstArg(args))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if updates.Due(env.cfg.Updates.Check, updates.OnStart) {
			printStep("Checking for mod updates...")
			if err := env.checkUpdates(ctx); err != nil {
				printWarning("Mod update check failed: %v", err)
			}
		}

		printStep("Launching %s", p.Name)
		res, err := env.launcher.Launch(ctx, p)
		if err != nil {
			return fmt.Errorf("launching %s: %w", p.Name, err)
		}
		printSuccess("Game exited with code %d", res.ExitCode)

		if updates.Due(env.cfg.Updates.Check, updates.OnExit) {
			printStep("Checking for mod updates...")
			if err := env.checkUpdates(ctx); err != nil {
				printWarning("Mod update check failed: %v", err)
			}
		}
		return nil
	},
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage launch profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List launch profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		opt := env.sortOption()
		if s, _ := cmd.Flags().GetString("sort"); s != "" {
			if opt, err = profile.ParseSort(s); err != nil {
				return err
			}
		}

		profiles, err := env.profiles.List(opt)
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No profiles found.")
			return nil
		}

		out := cmd.OutOrStdout()
		for _, p := range profiles {
			marker := " "
			if p.IsDefault {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s  %s  %s\n", marker, colorize(colorBold, p.Name), colorize(colorCyan, shortID(p.ID)), describeProfile(p))
		}
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [profile]",
	Short: "Show a profile as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.findProfile(firstArg(args))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		p := profile.New(args[0])
		if err := applyProfileFlags(cmd, &p); err != nil {
			return err
		}
		created, err := env.profiles.Create(p)
		if err != nil {
			return err
		}
		printSuccess("Created profile %s (%s)", created.Name, shortID(created.ID))
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <profile>",
	Short: "Change a profile's settings",
	Long: `Change a profile's settings. Only the flags given are applied.

Examples:
  temlaunch profile set Main --width 2560 --height 1440
  temlaunch profile set Main --windowed --xdead
  temlaunch profile set Main --name "Main (old)"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.findProfile(args[0])
		if err != nil {
			return err
		}
		if err := applyProfileFlags(cmd, &p); err != nil {
			return err
		}
		if cmd.Flags().Changed("name") {
			p.Name, _ = cmd.Flags().GetString("name")
		}
		updated, err := env.profiles.Update(p)
		if err != nil {
			return err
		}
		printSuccess("Updated profile %s", updated.Name)
		return nil
	},
}

var profileRmCmd = &cobra.Command{
	Use:     "rm <profile>",
	Aliases: []string{"delete"},
	Short:   "Delete a profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.findProfile(args[0])
		if err != nil {
			return err
		}
		if err := env.profiles.Delete(p.ID); err != nil {
			return err
		}
		printSuccess("Deleted profile %s", p.Name)
		if p.IsDefault {
			printWarning("No default profile is set; pick one with \"temlaunch profile default\"")
		}
		return nil
	},
}

var profileDefaultCmd = &cobra.Command{
	Use:   "default <profile>",
	Short: "Make a profile the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.findProfile(args[0])
		if err != nil {
			return err
		}
		if err := env.profiles.SetDefault(p.ID); err != nil {
			return err
		}
		printSuccess("%s is now the default profile", p.Name)
		return nil
	},
}

func addProfileFlags(cmd *cobra.Command) {
	cmd.Flags().Int("width", profile.DefaultWindowWidth, "window width in pixels")
	cmd.Flags().Int("height", profile.DefaultWindowHeight, "window height in pixels")
	cmd.Flags().Bool("windowed", false, "run in a window instead of fullscreen")
	cmd.Flags().Bool("splash", false, "show the startup splash movies")
	cmd.Flags().Bool("tem", true, "load the TEM mod")
	cmd.Flags().Bool("xdead", false, "load the XDead mod (requires TEM)")
	cmd.Flags().Bool("default", false, "make this the default profile")
}

// applyProfileFlags copies explicitly set flags onto p.
func applyProfileFlags(cmd *cobra.Command, p *profile.Profile) error {
	f := cmd.Flags()
	if f.Changed("width") {
		p.WindowWidth, _ = f.GetInt("width")
	}
	if f.Changed("height") {
		p.WindowHeight, _ = f.GetInt("height")
	}
	if p.WindowWidth <= 0 || p.WindowHeight <= 0 {
		return fmt.Errorf("invalid window size %dx%d", p.WindowWidth, p.WindowHeight)
	}
	if f.Changed("windowed") {
		windowed, _ := f.GetBool("windowed")
		p.IsFullscreen = !windowed
	}
	if f.Changed("splash") {
		splash, _ := f.GetBool("splash")
		p.DisableSplashScreen = !splash
	}
	if f.Changed("tem") {
		p.UseTEM, _ = f.GetBool("tem")
	}
	if f.Changed("xdead") {
		p.UseXDead, _ = f.GetBool("xdead")
	}
	if f.Changed("default") {
		p.IsDefault, _ = f.GetBool("default")
	}
	return nil
}

func init() {
	profileListCmd.Flags().String("sort", "", "createdAt-asc, createdAt-desc, name-asc or name-desc")
	addProfileFlags(profileAddCmd)
	addProfileFlags(profileSetCmd)
	profileSetCmd.Flags().String("name", "", "rename the profile")

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileRmCmd)
	profileCmd.AddCommand(profileDefaultCmd)
}

// --- rewrite ---

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [profile]",
	Short: "Apply a profile to GridEngine.ini without starting the game",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.findProfile(firstArg(args))
		if err != nil {
			return err
		}

		paths := gridini.PathsIn(env.cfg.Game.ConfigPath)
		res, err := gridini.Rewrite(paths, p.Settings(), gridini.LogObserver(env.logger))
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			printWarning("Dropped line: %v", w)
		}
		if res.BackupCreated {
			printStatus("Backup", "%s", paths.Backup)
		}
		printSuccess("Wrote %s (%d lines, %d rewritten)", paths.Live, res.Lines, res.Rewritten)
		return nil
	},
}

// --- mods ---

var modsCmd = &cobra.Command{
	Use:   "mods",
	Short: "Inspect, sync and update the TEM and XDead mods",
}

var modsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show downloaded and installed mods",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		installed := env.installer.Status()
		out := cmd.OutOrStdout()
		for _, mod := range []string{mods.TEM, mods.XDead} {
			release, err := mods.ReadRelease(env.cfg.ModsDir(), mod)
			if err != nil {
				return err
			}
			downloaded := "not downloaded"
			if release != "" {
				downloaded = mods.Version(release)
			}
			state := "not installed"
			if (mod == mods.TEM && installed.TEM) || (mod == mods.XDead && installed.XDead) {
				state = "installed"
			}
			fmt.Fprintf(out, "  %s %s, %s\n", colorize(colorBold, mod+":"), downloaded, state)
		}
		return nil
	},
}

var modsSyncCmd = &cobra.Command{
	Use:   "sync [profile]",
	Short: "Copy or remove mod files to match a profile",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.findProfile(firstArg(args))
		if err != nil {
			return err
		}
		if err := env.installer.Sync(p); err != nil {
			return err
		}
		printSuccess("Mods synced for %s", p.Name)
		return nil
	},
}

var modsUpdateCmd = &cobra.Command{
	Use:   "update [mod...]",
	Short: "Download the latest mod releases from GitHub",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var results []mods.Result
		if len(args) == 0 {
			if results, err = env.updater.UpdateAll(ctx); err != nil {
				return err
			}
		} else {
			for _, mod := range args {
				res, err := env.updater.Update(ctx, strings.ToLower(mod))
				if err != nil {
					return err
				}
				results = append(results, res)
			}
		}

		if len(results) == 0 {
			printWarning("No mod repositories configured")
			return nil
		}
		for _, res := range results {
			if res.Updated {
				printSuccess("%s updated to %s", res.Mod, res.Version)
			} else {
				printStatus(res.Mod, "%s is the latest release", res.Version)
			}
		}
		return nil
	},
}

func init() {
	modsCmd.AddCommand(modsStatusCmd)
	modsCmd.AddCommand(modsSyncCmd)
	modsCmd.AddCommand(modsUpdateCmd)
}

// --- console ---

var consoleCmd = &cobra.Command{
	Use:   "console <command...>",
	Short: "Run a launcher console command",
	Long: `Run a launcher console command.

Commands: echo, user-agent (ua), game, config, mods, version, help`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		fmt.Fprintln(cmd.OutOrStdout(), env.console.Execute(strings.Join(args, " ")))
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: fmt.Sprintf(`Set a configuration value.

Keys: %s`, strings.Join(config.ValidKeys(), ", ")),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if key == "github.token" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.SetGitHubToken(cfg.SecretStore(), value); err != nil {
				return err
			}
			printSuccess("Stored GitHub token")
			return nil
		}

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

// --- helpers ---

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func describeProfile(p profile.Profile) string {
	mode := "fullscreen"
	if !p.IsFullscreen {
		mode = "windowed"
	}
	var enabled []string
	if p.UseTEM {
		enabled = append(enabled, mods.TEM)
		if p.UseXDead {
			enabled = append(enabled, mods.XDead)
		}
	}
	modList := "no mods"
	if len(enabled) > 0 {
		modList = strings.Join(enabled, "+")
	}
	return fmt.Sprintf("%dx%d %s, %s", p.WindowWidth, p.WindowHeight, mode, modList)
}
