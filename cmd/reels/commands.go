package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/justestif/go-reels-feed/internal/app"
	"github.com/justestif/go-reels-feed/internal/config"
	"github.com/justestif/go-reels-feed/internal/log"
	"github.com/justestif/go-reels-feed/internal/preference"
	"github.com/justestif/go-reels-feed/internal/search"
	"github.com/justestif/go-reels-feed/internal/song"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "reels",
		Short:         "Personalized music reels feed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to YAML config (default: $REELS_CONFIG or ./reels.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(g),
		newSearchCmd(g),
		newFeedCmd(g),
		newPrefsCmd(g),
	)
	return root
}

// load reads configuration and configures logging from it.
func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	log.Configure(log.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	return cfg, nil
}

// open loads configuration and builds the app.
func (g *globalFlags) open(ctx context.Context) (*app.App, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	return a, nil
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Open the feed and serve the control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.Config.Server.Addr = addr
			}

			c, err := a.OpenFeed(ctx)
			if err != nil {
				return err
			}
			return a.Server(c).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search every connector through the discover cascade",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			q := search.Query{Text: strings.Join(args, " "), Language: lang}
			songs := a.Connectors.Discover.Search(ctx, q)
			if len(songs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no results")
				return nil
			}
			return printSongs(cmd.OutOrStdout(), songs)
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "preferred language hint")
	return cmd
}

func newFeedCmd(g *globalFlags) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print a personalized page and mark it seen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			page, err := a.Engine.FetchPersonalizedFeed(ctx)
			if err != nil {
				return err
			}
			if count > 0 && len(page) > count {
				page = page[:count]
			}
			if len(page) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no new songs")
				return nil
			}
			return printSongs(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "print at most this many songs (0 prints the whole page)")
	return cmd
}

func newPrefsCmd(g *globalFlags) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show learned artist scores and language weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if reset {
				a.Prefs.Reset()
				fmt.Fprintln(cmd.OutOrStdout(), "preferences reset")
				return nil
			}
			return printPrefs(cmd.OutOrStdout(), a.Prefs.Snapshot())
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "clear all learned preferences")
	return cmd
}

func printSongs(w io.Writer, songs []song.Song) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTITLE\tARTIST\tSOURCE\tLENGTH")
	for i, s := range songs {
		length := "-"
		if s.Duration > 0 {
			length = (time.Duration(s.Duration) * time.Second).String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, s.Title, s.Artist, s.Source, length)
	}
	return tw.Flush()
}

func printPrefs(w io.Writer, st preference.State) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "interactions\t%d\n", len(st.Interactions))
	fmt.Fprintf(tw, "seen songs\t%d\n\n", len(st.SeenSongIDs))

	fmt.Fprintln(tw, "LANGUAGE\tWEIGHT")
	for _, l := range st.PreferredLanguages {
		fmt.Fprintf(tw, "%s\t%.0f%%\n", l.Language, l.Weight)
	}

	fmt.Fprintln(tw, "\nARTIST\tSCORE\tPLAYS")
	for _, a := range st.TopArtists {
		fmt.Fprintf(tw, "%s\t%.2f\t%d\n", a.Artist, a.Score, a.InteractionCount)
	}

	if len(st.SkippedArtists) > 0 {
		fmt.Fprintf(tw, "\nsuppressed\t%s\n", strings.Join(st.SkippedArtists, ", "))
	}
	return tw.Flush()
}
