// Command helpmepost drafts posts from a short intent and publishes image
// posts to Bluesky, optionally mirroring them to X.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zebadrabbit/HelpMePost/internal/bsky"
	"github.com/zebadrabbit/HelpMePost/internal/config"
	"github.com/zebadrabbit/HelpMePost/internal/hashtag"
	"github.com/zebadrabbit/HelpMePost/internal/logging"
	"github.com/zebadrabbit/HelpMePost/internal/planner"
	"github.com/zebadrabbit/HelpMePost/internal/service"
	"github.com/zebadrabbit/HelpMePost/internal/store"
	"github.com/zebadrabbit/HelpMePost/internal/xpost"
)

type app struct {
	cfg *config.Config
	log *zap.Logger
	out io.Writer

	logLevel string
	dev      bool
}

func main() {
	if err := newRootCmd(&app{out: os.Stdout}).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "helpmepost",
		Short:        "Draft and publish image posts",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if a.logLevel != "" {
				level = a.logLevel
			}
			log, err := logging.New(level, a.dev)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.cfg, a.log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (default from LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&a.dev, "dev", false, "human-readable console logs")

	root.AddCommand(
		newGenerateCmd(a),
		newPublishCmd(a),
		newMediaCmd(a),
		newOptimizeCmd(a),
		newFacetsCmd(a),
		newPlansCmd(a),
		newPostsCmd(a),
		newServeCmd(a),
		newXVerifyCmd(a),
	)
	return root
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, a.cfg.DBPath)
}

// newService wires the planners, publish client and optional X mirror
// around st.
func (a *app) newService(ctx context.Context, st *store.Store) (*service.Service, error) {
	if !planner.ValidModel(a.cfg.Gemini.Model) {
		return nil, fmt.Errorf("GEMINI_MODEL %q: %w", a.cfg.Gemini.Model, planner.ErrInvalidModel)
	}
	tags, err := hashtag.LoadDefault()
	if err != nil {
		return nil, err
	}

	var backend planner.Backend
	if a.cfg.Gemini.APIKey != "" {
		gb, err := planner.NewGeminiBackend(ctx, a.cfg.Gemini.APIKey)
		if err != nil {
			return nil, err
		}
		backend = gb
	} else {
		a.log.Info("GEMINI_API_KEY not set, every plan uses the template")
	}
	gen := planner.NewGenerator(backend, tags,
		planner.WithTimeout(a.cfg.Gemini.Timeout),
		planner.WithDefaultModel(a.cfg.Gemini.Model),
		planner.WithLogger(a.log))

	client := bsky.New(
		bsky.WithBaseURL(a.cfg.Bluesky.BaseURL),
		bsky.WithCallTimeout(a.cfg.Bluesky.Timeout),
		bsky.WithLogger(a.log))

	opts := []service.Option{service.WithHistory(st), service.WithLogger(a.log)}
	if x := a.cfg.X; x.Configured() {
		opts = append(opts, service.WithMirror(xpost.New(ctx, xCredentials(x), xpost.WithLogger(a.log))))
	}
	return service.New(st, gen, client, opts...), nil
}

func xCredentials(x config.XConfig) xpost.Credentials {
	return xpost.Credentials{
		ConsumerKey:    x.ConsumerKey,
		ConsumerSecret: x.ConsumerSecret,
		AccessToken:    x.AccessToken,
		AccessSecret:   x.AccessSecret,
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
