package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/jarvis/common/version"
	"github.com/bdobrica/jarvis/internal/jarvis/app"
	"github.com/bdobrica/jarvis/internal/jarvis/config"
	"github.com/bdobrica/jarvis/internal/jarvis/observability"
)

// cli holds state shared by the subcommands.
type cli struct {
	configPath string
	cfg        *config.Config
	shutdown   observability.ShutdownFunc
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "jarvis",
		Short:         "Voice-driven assistant for Android devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if c.shutdown != nil {
				return c.shutdown(context.Background())
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("JARVIS_CONFIG"), "path to a YAML config file")

	root.AddCommand(
		c.serveCommand(),
		c.listenCommand(),
		c.chatCommand(),
		c.syncAppsCommand(),
		c.scanNotificationsCommand(),
		c.skillsCommand(),
		versionCommand(),
	)
	return root
}

func (c *cli) setup(ctx context.Context) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	observability.Setup(cfg.Log.Level, cfg.Log.Format)
	shutdown, err := observability.InitTracing(ctx, "jarvis", version.Version, observability.TracingConfig{
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	c.cfg = cfg
	c.shutdown = shutdown
	return nil
}

// withApp builds the assistant, runs fn with a context cancelled on
// SIGINT/SIGTERM, and closes the assistant afterwards.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New(c.cfg, app.Overrides{})
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}

func (c *cli) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Matrix channel and the notification scanner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(c.cfg, app.Overrides{})
			if err != nil {
				return err
			}
			defer a.Close()
			// Serve handles its own signals so SIGHUP can reload the profile.
			return a.Serve(cmd.Context())
		},
	}
}

func (c *cli) listenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Run the voice loop: record, transcribe, act, speak",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Listen(ctx)
			})
		},
	}
}

func (c *cli) chatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [text...]",
		Short: "Talk to Jarvis in the terminal",
		Long: `Without arguments, chat reads one request per line from stdin and keeps
the conversation going until EOF. With arguments, it answers a single
request and exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if len(args) > 0 {
					reply := a.Loop().RespondOnce(ctx, strings.Join(args, " "))
					fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
					return nil
				}
				return a.Chat(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

func (c *cli) syncAppsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-apps",
		Short: "Refresh the app catalog from the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.SyncApps(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Synced %d apps.\n", n)
				return nil
			})
		},
	}
}

func (c *cli) scanNotificationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan-notifications",
		Short: "Fetch, filter and log the device's notifications once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.ScanNotifications(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d notifications, %d important, %d new.\n", res.Raw, len(res.Important), res.Added)
				for _, n := range res.Important {
					fmt.Fprintf(out, "- %s\n", n)
				}
				return nil
			})
		},
	}
}

func (c *cli) skillsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List the skills offered to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(_ context.Context, a *app.App) error {
				out := cmd.OutOrStdout()
				for _, d := range a.Definitions() {
					fmt.Fprintf(out, "%-22s %s\n", d.Function.Name, d.Function.Description)
				}
				return nil
			})
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}
