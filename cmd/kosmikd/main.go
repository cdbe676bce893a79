package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lordkekz/KosmikAutoUpdate/internal/app"
	"github.com/lordkekz/KosmikAutoUpdate/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer
// app.Close().
func newApp() (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "kosmikd",
	Short: "Auto-update distribution server",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		serverID := uuid.New().String()
		cfg := config.NewConfig(serverID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Server ID: %s\n", serverID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Server ID:     %s\n", cfg.ServerID)
		fmt.Printf("Listen Addr:   %s\n", cfg.ListenAddr)
		fmt.Printf("Download Host: %s\n", cfg.DownloadHost)
		fmt.Printf("Index:         %s (%s)\n", cfg.Database.Path, cfg.Database.Type)
		fmt.Printf("Store:         %s (%s)\n", cfg.Store.Root, cfg.Store.Type)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the update API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.Serve(ctx)
	},
}

// add-version command
var addVersionCmd = &cobra.Command{
	Use:   "add-version VERSION DIR",
	Short: "Ingest a new version from a directory of release files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		dir, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		manifest, err := a.AddVersion(args[0], dir)
		if err != nil {
			return fmt.Errorf("adding version: %w", err)
		}

		fmt.Printf("Added version %s (%d files, archive %d bytes, md5 %s)\n",
			manifest.VersionID, len(manifest.Files), manifest.ArchiveBytes, manifest.ArchiveMD5)
		return nil
	},
}

// set-channel command
var setChannelCmd = &cobra.Command{
	Use:   "set-channel CHANNEL VERSION",
	Short: "Point a channel at a version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetChannel(args[0], args[1]); err != nil {
			return err
		}

		fmt.Printf("Channel %s -> %s\n", args[0], args[1])
		return nil
	},
}

// channels command
var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		channels, err := a.ListChannels()
		if err != nil {
			return err
		}

		if len(channels) == 0 {
			fmt.Println("No channels.")
			return nil
		}

		for _, ch := range channels {
			fmt.Printf("%-15s %s\n", ch.Name, ch.VersionID)
		}
		return nil
	},
}

// version command
var versionCmd = &cobra.Command{
	Use:   "version VERSION",
	Short: "Show a version's manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		manifest, err := a.GetVersionManifest(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Version %s (%s)\n", manifest.VersionID, manifest.Date.Format("2006-01-02 15:04:05"))
		fmt.Printf("Archive: %d bytes, md5 %s\n\n", manifest.ArchiveBytes, manifest.ArchiveMD5)
		for path, f := range manifest.Files {
			fmt.Printf("%s  %10d  %s\n", f.MD5, f.Bytes, path)
		}
		return nil
	},
}

// tokens command
var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage download tokens",
}

var tokensPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired download tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.PurgeExpiredTokens()
		if err != nil {
			return err
		}

		fmt.Printf("Purged %d token(s)\n", n)
		return nil
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot OUT",
	Short: "Write an encrypted snapshot of the version index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprint(os.Stderr, "Passphrase: ")
		passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}

		if err := a.Snapshot(args[0], string(passphrase)); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}

		fmt.Printf("Snapshot written to %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	tokensCmd.AddCommand(tokensPurgeCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(addVersionCmd)
	rootCmd.AddCommand(setChannelCmd)
	rootCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(snapshotCmd)
}
