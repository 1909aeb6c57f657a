// Package cmd provides the CLI commands for gitcms.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/statichq/gitcms/internal/apperrors"
	"github.com/statichq/gitcms/internal/authstore"
	"github.com/statichq/gitcms/internal/backend"
	"github.com/statichq/gitcms/internal/backup"
	"github.com/statichq/gitcms/internal/config"
	"github.com/statichq/gitcms/internal/entry"
	"github.com/statichq/gitcms/internal/format"
	"github.com/statichq/gitcms/internal/github"
	"github.com/statichq/gitcms/internal/localgit"
	"github.com/statichq/gitcms/internal/version"
)

// verboseFlag is the shared verbose flag for all commands.
var verboseFlag = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "Enable verbose logging",
}

// LogFormat represents the log output format.
type LogFormat string

const (
	// LogFormatText is the human-readable text format (default).
	LogFormatText LogFormat = "text"
	// LogFormatJSON is the JSON-formatted structured logs.
	LogFormatJSON LogFormat = "json"
)

// getLogFormat returns the configured log format from GITCMS_LOG_FORMAT.
func getLogFormat() LogFormat {
	val := strings.ToLower(os.Getenv("GITCMS_LOG_FORMAT"))
	switch val {
	case "json":
		return LogFormatJSON
	case "text", "":
		return LogFormatText
	default:
		// Invalid format - will warn after logger is set up
		return LogFormatText
	}
}

// setupLogging configures the global logger based on the verbose flag and
// GITCMS_LOG_FORMAT.
func setupLogging(cmd *cli.Command) {
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch getLogFormat() {
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))

	envVal := strings.ToLower(os.Getenv("GITCMS_LOG_FORMAT"))
	if envVal != "" && envVal != "text" && envVal != "json" {
		slog.Warn("Invalid GITCMS_LOG_FORMAT value, using text format", "value", envVal)
	}

	if level == slog.LevelDebug {
		slog.Debug("Verbose logging enabled")
	}
}

// NewApp creates the CLI application.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "gitcms",
		Usage:   "Manage structured content stored in a git repository",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
				Value:   "config.yml",
				Sources: cli.EnvVars("GITCMS_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "API token for the configured backend",
				Sources: cli.EnvVars("GITCMS_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "backup-db",
				Usage:   "Path to the local draft backup database",
				Value:   filepath.Join(".gitcms", "backups.db"),
				Sources: cli.EnvVars("GITCMS_BACKUP_DB"),
			},
			&cli.StringFlag{
				Name:    "auth-file",
				Usage:   "Path to the stored credentials file",
				Value:   filepath.Join(".gitcms", "auth.json"),
				Sources: cli.EnvVars("GITCMS_AUTH_FILE"),
			},
			verboseFlag,
		},
		Commands: []*cli.Command{
			entriesCommand(),
			mediaCommand(),
			draftsCommand(),
			searchCommand(),
			queryCommand(),
			branchesCommand(),
			pullsCommand(),
			statusCommand(),
			whoamiCommand(),
			logoutCommand(),
		},
	}
}

// setupBackend loads the configuration, opens the draft backup store,
// registers the providers and resolves the configured backend. The returned
// cleanup func closes the backup store.
func setupBackend(ctx context.Context, cmd *cli.Command) (*backend.Backend, func(), error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}

	token := cmd.String("token")
	logger := slog.Default()

	var auth backend.AuthStore
	if authPath := cmd.String("auth-file"); authPath != "" {
		fileStore := authstore.NewFile(authPath)
		auth = fileStore
		// A token stored by a previous login beats having none at all.
		if token == "" {
			if stored, loadErr := fileStore.Load(); loadErr != nil {
				logger.Warn("read stored credentials", "error", loadErr)
			} else if stored != nil && stored.BackendName == cfg.Backend.Name {
				token = stored.Token
			}
		}
	}

	var store *backup.Store
	cleanup := func() {}
	if dbPath := cmd.String("backup-db"); dbPath != "" {
		if mkErr := os.MkdirAll(filepath.Dir(dbPath), 0o750); mkErr != nil {
			return nil, nil, fmt.Errorf("create backup directory: %w", mkErr)
		}
		store, err = backup.Open(dbPath, backup.WithLogger(logger))
		if err != nil {
			// Drafts are a convenience; a broken local store must not take
			// the repository operations down with it.
			logger.Warn("draft backups disabled", "path", dbPath, "error", err)
			store = nil
		} else {
			cleanup = func() {
				if closeErr := store.Close(); closeErr != nil {
					logger.Warn("close backup store", "error", closeErr)
				}
			}
		}
	}

	registerProviders(store)

	var opts []backend.Option
	if store != nil {
		opts = append(opts, backend.WithBackupStore(store))
	}
	if auth != nil {
		opts = append(opts, backend.WithAuthStore(auth))
	}
	b, err := backend.Resolve(cfg, token, logger, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	if err := b.Init(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("initialize backend: %w", err)
	}
	return b, cleanup, nil
}

// registerProviders wires the provider factories into the backend registry.
func registerProviders(store *backup.Store) {
	backend.Register("github", func(cfg *config.Config, token string, logger *slog.Logger) (backend.Provider, error) {
		opts := []github.Option{github.WithBackendLogger(logger)}
		if store != nil {
			opts = append(opts, github.WithMetadataCache(store))
		}
		return github.New(cfg.Backend, token, nil, opts...)
	})
	backend.Register("localgit", func(cfg *config.Config, _ string, logger *slog.Logger) (backend.Provider, error) {
		return localgit.New(cfg.Backend, localgit.WithLogger(logger))
	})
}

// entriesCommand creates the entries subcommand group.
func entriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "entries",
		Usage: "List, read, save and delete collection entries",
		Commands: []*cli.Command{
			entriesListCommand(),
			entriesGetCommand(),
			entriesSaveCommand(),
			entriesDeleteCommand(),
		},
	}
}

// entriesListCommand creates the entries list subcommand.
func entriesListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List the entries of a collection",
		ArgsUsage: "<collection>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "all",
				Aliases: []string{"a"},
				Usage:   "Follow pagination and list every entry",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return errCollectionArgRequired
			}
			collection := cmd.Args().Get(0)

			b, cleanup, err := setupBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if cmd.Bool("all") {
				entries, err := b.ListAllEntries(ctx, collection)
				if err != nil {
					return fmt.Errorf("list entries: %w", err)
				}
				displayEntries(entries)
				return nil
			}

			page, err := b.ListEntries(ctx, collection)
			if err != nil {
				return fmt.Errorf("list entries: %w", err)
			}
			displayEntries(page.Entries)
			displayCursorMeta(page.Cursor)
			return nil
		},
	}
}

// entriesGetCommand creates the entries get subcommand.
func entriesGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print one entry's raw content",
		ArgsUsage: "<collection> <slug>",
		Flags:     []cli.Flag{verboseFlag},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return errCollectionSlugArgsRequired
			}
			collection := cmd.Args().Get(0)
			slug := cmd.Args().Get(1)

			b, cleanup, err := setupBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			e, err := b.GetEntry(ctx, collection, slug)
			if err != nil {
				return fmt.Errorf("get entry: %w", err)
			}
			displayEntry(e)
			return nil
		},
	}
}

// entriesSaveCommand creates the entries save subcommand.
func entriesSaveCommand() *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "Create or update an entry from a local file",
		ArgsUsage: "<collection> <file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "slug",
				Aliases: []string{"s"},
				Usage:   "Entry slug (generated from the content when empty)",
			},
			&cli.StringFlag{
				Name:  "move-to",
				Usage: "New repository path; entry-relative assets move along",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return errCollectionFileArgsRequired
			}
			collection := cmd.Args().Get(0)
			file := cmd.Args().Get(1)

			b, cleanup, err := setupBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := b.Authenticate(ctx); err != nil {
				return fmt.Errorf("authenticate: %w", err)
			}

			e, err := loadEntryFile(b.Config(), collection, file, cmd.String("slug"))
			if err != nil {
				return err
			}

			if err := b.PersistEntry(ctx, e, backend.PersistEntryOptions{
				NewPath: cmd.String("move-to"),
			}); err != nil {
				return fmt.Errorf("persist entry: %w", err)
			}

			slog.Info("entry saved", "collection", collection, "slug", e.Slug, "path", e.Path)
			return nil
		},
	}
}

// entriesDeleteCommand creates the entries delete subcommand.
func entriesDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an entry and all its locale files",
		ArgsUsage: "<collection> <slug>",
		Flags:     []cli.Flag{verboseFlag},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return errCollectionSlugArgsRequired
			}
			collection := cmd.Args().Get(0)
			slug := cmd.Args().Get(1)

			b, cleanup, err := setupBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := b.Authenticate(ctx); err != nil {
				return fmt.Errorf("authenticate: %w", err)
			}

			if err := b.DeleteEntry(ctx, collection, slug); err != nil {
				return fmt.Errorf("delete entry: %w", err)
			}
			slog.Info("entry deleted", "collection", collection, "slug", slug)
			return nil
		},
	}
}

// mediaCommand creates the media subcommand group.
func mediaCommand() *cli.Command {
	return &cli.Command{
		Name:  "media",
		Usage: "Manage media files",
		Commands: []*cli.Command{
			{
				Name:  "ls",
				Usage: "List media files",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "folder",
						Aliases: []string{"f"},
						Usage:   "Media folder (defaults to the configured one)",
					},
					&cli.BoolFlag{
						Name:  "urls",
						Usage: "Resolve display URLs for the listed files",
					},
					verboseFlag,
				},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					setupLogging(cmd)
					return ctx, nil
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					b, cleanup, err := setupBackend(ctx, cmd)
					if err != nil {
						return err
					}
					defer cleanup()

					files, err := b.GetMedia(ctx, cmd.String("folder"))
					if err != nil {
						return fmt.Errorf("list media: %w", err)
					}
					if cmd.Bool("urls") {
						files, err = b.GetMediaDisplayURLs(ctx, files)
						if err != nil {
							return fmt.Errorf("resolve display urls: %w", err)
						}
					}
					displayMedia(files)
					return nil
				},
			},
			{
				Name:      "get",
				Usage:     "Download one media file to the working directory",
				ArgsUsage: "<path>",
				Flags:     []cli.Flag{verboseFlag},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					setupLogging(cmd)
					return ctx, nil
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 1 {
						return errPathArgRequired
					}
					mediaPath := cmd.Args().Get(0)

					b, cleanup, err := setupBackend(ctx, cmd)
					if err != nil {
						return err
					}
					defer cleanup()

					f, err := b.GetMediaFile(ctx, mediaPath)
					if err != nil {
						return fmt.Errorf("get media: %w", err)
					}
					out := filepath.Base(f.Name)
					if err := os.WriteFile(out, f.Content, 0o600); err != nil {
						return fmt.Errorf("write %s: %w", out, err)
					}
					slog.Info("media downloaded", "path", f.Path, "file", out, "size", f.Size)
					return nil
				},
			},
			{
				Name:      "upload",
				Usage:     "Upload a local file to the media folder",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "folder",
						Aliases: []string{"f"},
						Usage:   "Media folder (defaults to the configured one)",
					},
					verboseFlag,
				},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					setupLogging(cmd)
					return ctx, nil
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 1 {
						return errFileArgRequired
					}
					file := cmd.Args().Get(0)

					b, cleanup, err := setupBackend(ctx, cmd)
					if err != nil {
						return err
					}
					defer cleanup()

					if _, err := b.Authenticate(ctx); err != nil {
						return fmt.Errorf("authenticate: %w", err)
					}

					content, err := os.ReadFile(file) //nolint:gosec // path is operator controlled
					if err != nil {
						return fmt.Errorf("read %s: %w", file, err)
					}

					folder := cmd.String("folder")
					if folder == "" {
						folder = b.Config().MediaFolder
					}
					name := filepath.Base(file)
					media := entry.MediaFile{
						Path:    strings.TrimPrefix(folder+"/"+name, "/"),
						Name:    name,
						Size:    int64(len(content)),
						Content: content,
						Draft:   true,
					}
					if err := b.PersistMedia(ctx, media); err != nil {
						return fmt.Errorf("upload media: %w", err)
					}
					slog.Info("media uploaded", "path", media.Path, "size", media.Size)
					return nil
				},
			},
			{
				Name:      "rm",
				Usage:     "Delete one media file",
				ArgsUsage: "<path>",
				Flags:     []cli.Flag{verboseFlag},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					setupLogging(cmd)
					return ctx, nil
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 1 {
						return errPathArgRequired
					}
					mediaPath := cmd.Args().Get(0)

					b, cleanup, err := setupBackend(ctx, cmd)
					if err != nil {
						return err
					}
					defer cleanup()

					if _, err := b.Authenticate(ctx); err != nil {
						return fmt.Errorf("authenticate: %w", err)
					}
					if err := b.DeleteMedia(ctx, mediaPath); err != nil {
						return fmt.Errorf("delete media: %w", err)
					}
					slog.Info("media deleted", "path", mediaPath)
					return nil
				},
			},
		},
	}
}

// draftsCommand creates the drafts subcommand group for local backups.
func draftsCommand() *cli.Command {
	return &cli.Command{
		Name:  "drafts",
		Usage: "Snapshot, inspect and clear local draft backups",
		Commands: []*cli.Command{
			{
				Name:      "save",
				Usage:     "Snapshot a local content file as a draft backup",
				ArgsUsage: "<collection> <file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "slug",
						Aliases: []string{"s"},
						Usage:   "Entry slug (an anonymous draft when empty)",
					},
					verboseFlag,
				},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					setupLogging(cmd)
					return ctx, nil
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 2 {
						return errCollectionFileArgsRequired
					}
					collection := cmd.Args().Get(0)
					file := cmd.Args().Get(1)

					b, cleanup, err := setupBackend(ctx, cmd)
					if err != nil {
						return err
					}
					defer cleanup()

					e, err := loadEntryFile(b.Config(), collection, file, cmd.String("slug"))
					if err != nil {
						return err
					}
					if err := b.PersistBackup(ctx, e); err != nil {
						return fmt.Errorf("persist backup: %w", err)
					}
					slog.Info("draft saved", "collection", collection, "slug", e.Slug)
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Show the backed-up draft of an entry",
				ArgsUsage: "<collection> [slug]",
				Flags:     []cli.Flag{verboseFlag},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					setupLogging(cmd)
					return ctx, nil
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 1 {
						return errCollectionArgRequired
					}
					collection := cmd.Args().Get(0)
					slug := cmd.Args().Get(1)

					b, cleanup, err := setupBackend(ctx, cmd)
					if err != nil {
						return err
					}
					defer cleanup()

					e, err := b.GetBackup(ctx, collection, slug)
					if err != nil {
						return fmt.Errorf("get backup: %w", err)
					}
					if e == nil {
						displayNoDraft(collection, slug)
						return nil
					}
					displayEntry(e)
					return nil
				},
			},
			{
				Name:      "clear",
				Usage:     "Delete the backed-up draft of an entry",
				ArgsUsage: "<collection> [slug]",
				Flags:     []cli.Flag{verboseFlag},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					setupLogging(cmd)
					return ctx, nil
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 1 {
						return errCollectionArgRequired
					}
					collection := cmd.Args().Get(0)
					slug := cmd.Args().Get(1)

					b, cleanup, err := setupBackend(ctx, cmd)
					if err != nil {
						return err
					}
					defer cleanup()

					if err := b.DeleteBackup(ctx, collection, slug); err != nil {
						return fmt.Errorf("delete backup: %w", err)
					}
					slog.Info("draft cleared", "collection", collection, "slug", slug)
					return nil
				},
			},
		},
	}
}

// searchCommand creates the search subcommand.
func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Fuzzy-search entries across collections",
		ArgsUsage: "<term>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "collections",
				Aliases: []string{"C"},
				Usage:   "Collections to search (all when empty)",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return errTermArgRequired
			}
			term := cmd.Args().Get(0)

			b, cleanup, err := setupBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := b.Search(ctx, cmd.StringSlice("collections"), term)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			displaySearchResults(results)
			return nil
		},
	}
}

// queryCommand creates the query subcommand.
func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Search one collection against an explicit field list",
		ArgsUsage: "<collection> <term>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "fields",
				Aliases: []string{"F"},
				Usage:   "Fields to match (the collection's search fields when empty)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of results (0 = unlimited)",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return errCollectionTermArgsRequired
			}
			collection := cmd.Args().Get(0)
			term := cmd.Args().Get(1)

			b, cleanup, err := setupBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := b.Query(ctx, collection, cmd.StringSlice("fields"), term, cmd.Int("limit"))
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			displaySearchResults(results)
			return nil
		},
	}
}

// branchesCommand creates the branches subcommand group.
func branchesCommand() *cli.Command {
	return &cli.Command{
		Name:  "branches",
		Usage: "List repository branches and switch the content branch",
		Flags: []cli.Flag{verboseFlag},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			b, cleanup, err := setupBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			branches, err := b.ListBranches(ctx)
			if err != nil {
				return fmt.Errorf("list branches: %w", err)
			}
			displayBranches(branches)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "switch",
				Usage:     "Point subsequent operations at another branch",
				ArgsUsage: "<branch>",
				Flags:     []cli.Flag{verboseFlag},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					setupLogging(cmd)
					return ctx, nil
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 1 {
						return errBranchArgRequired
					}
					branch := cmd.Args().Get(0)

					b, cleanup, err := setupBackend(ctx, cmd)
					if err != nil {
						return err
					}
					defer cleanup()

					if err := b.SetBranch(ctx, branch); err != nil {
						return fmt.Errorf("switch branch: %w", err)
					}
					slog.Info("branch switched", "branch", branch)
					return nil
				},
			},
		},
	}
}

// pullsCommand creates the pulls subcommand.
func pullsCommand() *cli.Command {
	return &cli.Command{
		Name:  "pulls",
		Usage: "List open pull requests",
		Flags: []cli.Flag{verboseFlag},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			b, cleanup, err := setupBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			pulls, err := b.ListPulls(ctx)
			if err != nil {
				return fmt.Errorf("list pulls: %w", err)
			}
			displayPulls(pulls)
			return nil
		},
	}
}

// statusCommand creates the status subcommand.
func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check backend health and credentials",
		Flags: []cli.Flag{verboseFlag},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			b, cleanup, err := setupBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			status, err := b.Status(ctx)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			displayStatus(status)
			return nil
		},
	}
}

// whoamiCommand creates the whoami subcommand.
func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Verify credentials and print the authenticated user",
		Flags: []cli.Flag{verboseFlag},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			b, cleanup, err := setupBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			user, err := b.Authenticate(ctx)
			if err != nil {
				return fmt.Errorf("authenticate: %w", err)
			}
			displayUser(user)
			return nil
		},
	}
}

// logoutCommand creates the logout subcommand.
func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored credentials",
		Flags: []cli.Flag{verboseFlag},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			b, cleanup, err := setupBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := b.Logout(); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			slog.Info("credentials cleared")
			return nil
		},
	}
}

// loadEntryFile reads a local content file and prepares it for persistence.
// A missing slug marks the entry as new so one gets generated from the
// content.
func loadEntryFile(cfg *config.Config, collectionName, file, slug string) (*entry.Entry, error) {
	col := cfg.Collection(collectionName)
	if col == nil {
		return nil, fmt.Errorf("%s: %w", collectionName, apperrors.ErrCollectionNotFound)
	}

	raw, err := os.ReadFile(file) //nolint:gosec // path is operator controlled
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	codec, err := format.ByExtension(col.EntryExtension())
	if err != nil {
		return nil, err
	}
	data, err := codec.FromRaw(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}

	e := entry.New(collectionName, slug, "")
	e.Raw = string(raw)
	e.Data = data
	// Without a slug the entry is treated as new and gets one generated
	// from its content.
	e.NewRecord = slug == ""
	return e, nil
}

// Argument errors shared by the commands.
var (
	errCollectionArgRequired      = errors.New("collection argument required")
	errCollectionSlugArgsRequired = errors.New("collection and slug arguments required")
	errCollectionFileArgsRequired = errors.New("collection and file arguments required")
	errCollectionTermArgsRequired = errors.New("collection and term arguments required")
	errPathArgRequired            = errors.New("path argument required")
	errBranchArgRequired          = errors.New("branch argument required")
	errFileArgRequired            = errors.New("file argument required")
	errTermArgRequired            = errors.New("search term argument required")
)
