package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"vidup/internal/app"
	"vidup/internal/config"
	"vidup/internal/encryption"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and overlays secrets from the
// environment and the vidup.env file next to it.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := config.ApplyEnv(cfg, defaults["env_path"]); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a VidupApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Push", "Watch").
func newApp(cmd *cobra.Command, operation string, opts ...app.Option) (*app.VidupApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts = append(opts, app.WithLogLevel(slog.LevelDebug))
	}

	a, err := app.NewVidupApp(cfg, operation, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp closes a and reports a close failure unless the command already failed.
func closeApp(a *app.VidupApp, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func targetPath(args []string) (string, error) {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return absTarget, nil
}

var rootCmd = &cobra.Command{
	Use:          "vidup",
	Short:        "Upload videos to Telegram without sending anything twice",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		for _, dir := range []string{cfg.BaseDir, cfg.LogDir, filepath.Dir(cfg.Telegram.SessionPath)} {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return fmt.Errorf("creating %s: %w", dir, err)
			}
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])

		skipKeys, _ := cmd.Flags().GetBool("no-keys")
		if skipKeys {
			return nil
		}

		passphrase, err := readNewPassphrase()
		if err != nil {
			return err
		}
		enc := encryption.NewAgeEncryptor(cfg.Encryption)
		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		pub, err := enc.PublicKey()
		if err != nil {
			return err
		}
		fmt.Printf("Public key: %s\n", pub)
		fmt.Printf("Put your Telegram credentials in %s (VIDUP_BOT_TOKEN, VIDUP_API_ID, ...)\n", defaults["env_path"])
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
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:    %s\n", cfg.HostID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Ledger:     %s\n", cfg.LedgerPath)
		fmt.Printf("Mode:       %s\n", cfg.Telegram.Mode)
		fmt.Printf("Chat:       %s\n", cfg.Telegram.ChatID)
		fmt.Printf("Bot token:  %s\n", present(cfg.Telegram.BotToken != ""))
		fmt.Printf("API ID:     %s\n", present(cfg.Telegram.APIID != 0))
		fmt.Printf("Workers:    %d\n", cfg.Upload.Workers)
		fmt.Printf("Delay:      %s\n", cfg.Upload.Delay.Duration)
		if cfg.Staging.MaxSize > 0 {
			fmt.Printf("Queue max:  %s\n", humanize.Bytes(uint64(cfg.Staging.MaxSize)))
		}
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:      %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

func present(ok bool) string {
	if ok {
		return "set"
	}
	return "not set"
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Show the ledger encryption public key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		enc := encryption.NewAgeEncryptor(cfg.Encryption)
		if !enc.IsConfigured() {
			return fmt.Errorf("no keys at %s: run 'vidup config init'", cfg.Encryption.PublicKeyPath)
		}
		pub, err := enc.PublicKey()
		if err != nil {
			return err
		}
		fmt.Println(pub)
		return nil
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add [PATH]",
	Short: "Stage videos for upload",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		recursive, _ := cmd.Flags().GetBool("recursive")

		a, err := newApp(cmd, "StageFiles")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		target, err := targetPath(args)
		if err != nil {
			return err
		}
		res, err := a.StageFiles(target, recursive)
		if err != nil {
			return fmt.Errorf("staging: %w", err)
		}

		printStageResult(res.Staged, res.AlreadyUploaded, res.AlreadyStaged, res.Ignored)
		return nil
	},
}

func printStageResult(staged, uploaded, queued, ignored int) {
	fmt.Printf("Staged %d video(s)", staged)
	if uploaded > 0 {
		fmt.Printf(", %d already uploaded", uploaded)
	}
	if queued > 0 {
		fmt.Printf(", %d already staged", queued)
	}
	if ignored > 0 {
		fmt.Printf(", %d ignored", ignored)
	}
	fmt.Println()
}

// queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List staged videos",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "ListStaged", app.ReadOnly())
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		items, err := a.Staged()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("Nothing staged.")
			return nil
		}
		var total int64
		for _, it := range items {
			total += it.Size
			fmt.Printf("%s  %8s  %s  %s\n", it.Hash.Short(), humanize.Bytes(uint64(it.Size)),
				humanize.Time(it.StagedAt), it.Path)
		}
		fmt.Printf("%d video(s), %s\n", len(items), humanize.Bytes(uint64(total)))
		return nil
	},
}

// push command
var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload everything staged",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(cmd, "Push", app.WithTelegram())
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		summary, err := a.Push(ctx)
		if summary != nil {
			printSummary(summary.Uploaded, summary.Skipped, summary.Failed, summary.Bytes)
			for _, f := range summary.Failures {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", f.Path, f.Err)
			}
		}
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d upload(s) failed", summary.Failed)
		}
		return nil
	},
}

func printSummary(uploaded, skipped, failed int, bytes int64) {
	fmt.Printf("Uploaded %d video(s) (%s)", uploaded, humanize.Bytes(uint64(bytes)))
	if skipped > 0 {
		fmt.Printf(", %d skipped", skipped)
	}
	if failed > 0 {
		fmt.Printf(", %d failed", failed)
	}
	fmt.Println()
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload [PATH]",
	Short: "Stage videos and upload them",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		recursive, _ := cmd.Flags().GetBool("recursive")

		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(cmd, "Upload", app.WithTelegram())
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		target, err := targetPath(args)
		if err != nil {
			return err
		}
		staged, summary, err := a.Upload(ctx, target, recursive)
		if staged != nil {
			printStageResult(staged.Staged, staged.AlreadyUploaded, staged.AlreadyStaged, staged.Ignored)
		}
		if summary != nil {
			printSummary(summary.Uploaded, summary.Skipped, summary.Failed, summary.Bytes)
		}
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d upload(s) failed", summary.Failed)
		}
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch [DIR]",
	Short: "Upload new videos as they appear in a directory",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		recursive, _ := cmd.Flags().GetBool("recursive")
		interval, _ := cmd.Flags().GetDuration("interval")

		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(cmd, "Watch", app.WithTelegram())
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		target, err := targetPath(args)
		if err != nil {
			return err
		}
		fmt.Printf("Watching %s (Ctrl-C to stop)\n", target)
		if err := a.Watch(ctx, target, recursive, interval); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status [PATH]",
	Short: "View upload status of videos",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		recursive, _ := cmd.Flags().GetBool("recursive")

		a, err := newApp(cmd, "GetStatus", app.ReadOnly())
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		target, err := targetPath(args)
		if err != nil {
			return err
		}
		statuses, err := a.GetStatus(target, recursive)
		if err != nil {
			return err
		}

		if len(statuses) == 0 {
			fmt.Println("No videos found.")
			return nil
		}

		for _, s := range statuses {
			indicator := []byte("   ")
			switch {
			case s.IsUploaded:
				indicator[0] = 'U'
			case s.DuplicateOf != "":
				indicator[0] = 'D'
			default:
				indicator[0] = '?'
			}
			if s.IsStaged {
				indicator[1] = 'S'
			}
			if s.IsModifiedSince {
				indicator[2] = 'M'
			}
			fmt.Printf("%s %s\n", indicator, s.RelativePath)
		}
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log FILENAME",
	Short: "View upload attempts for a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "GetFileHistory", app.ReadOnly())
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		attempts, err := a.GetFileHistory(absPath)
		if err != nil {
			return err
		}
		if len(attempts) == 0 {
			fmt.Println("No upload attempts.")
			return nil
		}

		for _, at := range attempts {
			detail := at.RemoteRef
			if at.Error != "" {
				detail = at.Error
			}
			fmt.Printf("%s  %-7s  %-4s  %8s  %s\n",
				at.AttemptedAt.Local().Format("2006-01-02 15:04:05"),
				at.Status,
				at.Transport,
				humanize.Bytes(uint64(at.FileSize)),
				detail,
			)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View upload operation history",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "GetHistory", app.ReadOnly())
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		ops, err := a.GetHistory(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No upload operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().Bool("no-keys", false, "Skip generating the ledger encryption keys")
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	watchCmd.Flags().Duration("interval", 30*time.Second, "Time between directory scans")
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(ledgerCmd)
}
