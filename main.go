package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/df07/go-batch-renderer/pkg/assembler"
	"github.com/df07/go-batch-renderer/pkg/blender"
	"github.com/df07/go-batch-renderer/pkg/config"
	"github.com/df07/go-batch-renderer/pkg/host"
	"github.com/df07/go-batch-renderer/pkg/jobs"
	"github.com/df07/go-batch-renderer/pkg/loaders"
	"github.com/df07/go-batch-renderer/pkg/payload"
	"github.com/df07/go-batch-renderer/pkg/renderer"
	"github.com/df07/go-batch-renderer/pkg/scene"
	"github.com/df07/go-batch-renderer/pkg/storage"
	"github.com/df07/go-batch-renderer/pkg/turntable"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the persistent flags shared by every subcommand
type options struct {
	configPath string
	blender    string
	template   string
	payloadID  string
	dryRun     bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "batch-renderer",
		Short:         "Assemble JSON scenes in Blender and render them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML file with render and rig settings")
	flags.StringVar(&opts.blender, "blender", "", "Blender command line (overrides BLENDER_PATH)")
	flags.StringVar(&opts.template, "template", "", ".blend file opened before assembling (overrides BLEND_TEMPLATE)")
	flags.StringVar(&opts.payloadID, "payload-id", "", "Fetch the payload document by _id from MongoDB")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Record host calls in memory instead of launching Blender")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output, including Blender's own output")

	root.AddCommand(newAssembleCmd(opts), newTurntableCmd(opts), newModelsCmd(opts))
	return root
}

func newAssembleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "assemble [flags] <key>=<json>",
		Short: "Build a multi-camera scene and render every camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			doc, err := a.loadPayload(cmd.Context(), args)
			if err != nil {
				return err
			}
			s, err := scene.Build(doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Assembling scene %s: %d objects, %d cameras, %d lights\n",
				s.ID, len(s.Objects), len(s.Cameras), len(s.Lights))

			return a.run(cmd.Context(), s.ID, "cameras", a.assemble(s))
		},
	}
}

func newTurntableCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "turntable [flags] <key>=<json> \"is360=<0|1> steps=<n>\"",
		Short: "Render a single model as a still or a stepped turntable",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			flagArg, ok := payload.FindFlags(args)
			if !ok {
				return &payload.ArgumentError{Reason: "no \"is360=<0|1> steps=<n>\" argument found"}
			}
			tf, err := payload.ParseTurntableFlags(flagArg)
			if err != nil {
				return err
			}
			doc, err := a.loadPayload(cmd.Context(), args)
			if err != nil {
				return err
			}
			subject, err := scene.BuildSubject(doc)
			if err != nil {
				return err
			}
			if tf.Is360 {
				fmt.Fprintf(a.out, "Turntable of %s in %d steps\n", subject.ID, tf.Steps)
			} else {
				fmt.Fprintf(a.out, "Still of %s\n", subject.ID)
			}

			axes := host.ImportOptions{
				AxisForward: a.cfg.Settings.Assembler.AxisForward,
				AxisUp:      a.cfg.Settings.Assembler.AxisUp,
			}
			mode := "still"
			if tf.Is360 {
				mode = "turntable"
			}
			return a.run(cmd.Context(), subject.ID, mode, func(ctx context.Context, session host.Session, models *loaders.Resolver) (*renderer.RenderStats, error) {
				return turntable.New(session, models, a.cfg.Settings.Turntable, axes, a.logger).
					Run(ctx, subject, tf, a.cfg.RenderPath)
			})
		},
	}
}

func newModelsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "models [id...]",
		Short: "List cached models, or report where the given models can be found",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				return a.locateModels(cmd.Context(), args)
			}
			models, err := loaders.ListCachedModels(a.cfg.CachePath)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%d models in %s\n", len(models), a.cfg.CachePath)
			for _, m := range models {
				fmt.Fprintf(a.out, "  %-32s %10d bytes\n", m.ID, m.Size)
			}
			return nil
		},
	}
}

// app is the state of one command invocation
type app struct {
	opts   *options
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func (o *options) setup(cmd *cobra.Command) (*app, error) {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	exeDir := "."
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}
	cfg, err := config.Load(o.configPath, exeDir)
	if err != nil {
		return nil, err
	}
	if o.blender != "" {
		cfg.Blender.Binary = o.blender
	}
	if o.template != "" {
		cfg.Blender.Template = o.template
	}
	return &app{opts: o, cfg: cfg, logger: logger, out: cmd.OutOrStdout()}, nil
}

// loadPayload decodes the payload from MongoDB when --payload-id is set,
// from the command line otherwise
func (a *app) loadPayload(ctx context.Context, args []string) (payload.Document, error) {
	if a.opts.payloadID == "" {
		p, err := payload.Extract(args)
		if err != nil {
			return nil, err
		}
		return p.Decode()
	}

	if !a.cfg.Mongo.Enabled() {
		return nil, fmt.Errorf("%w: --payload-id needs MONGO_URI", config.ErrInvalid)
	}
	store, err := jobs.OpenStore(ctx, a.cfg.Mongo)
	if err != nil {
		return nil, err
	}
	defer store.Close(context.WithoutCancel(ctx))

	p, err := store.Fetch(ctx, a.opts.payloadID)
	if err != nil {
		return nil, err
	}
	return p.Decode()
}

// resolver builds the model resolver, backed by the bucket when storage is configured
func (a *app) resolver(ctx context.Context) (*loaders.Resolver, *storage.Bucket, error) {
	models := loaders.NewResolver(a.cfg.CachePath, nil)
	if !a.cfg.Storage.Enabled() {
		return models, nil, nil
	}
	bucket, err := storage.NewBucket(ctx, a.cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	models.Fetcher = bucket
	return models, bucket, nil
}

func (a *app) locateModels(ctx context.Context, ids []string) error {
	models, _, err := a.resolver(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		loc, err := models.Locate(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "  %-32s %s\n", id, loc)
	}
	return nil
}

type pipeline func(ctx context.Context, session host.Session, models *loaders.Resolver) (*renderer.RenderStats, error)

// run opens the host, runs fn, always quits the host, and reports the job status
func (a *app) run(ctx context.Context, id, mode string, fn pipeline) (err error) {
	models, bucket, err := a.resolver(ctx)
	if err != nil {
		return err
	}

	reporter := a.reporter(ctx)
	defer reporter.Close()
	a.report(ctx, reporter, jobs.NewEvent(id, mode, jobs.StatusRunning, nil, nil))

	var stats *renderer.RenderStats
	defer func() {
		status := jobs.StatusDone
		var outputs []string
		if stats != nil {
			outputs = stats.Outputs
		}
		if err != nil {
			status = jobs.StatusFailed
		}
		a.report(context.WithoutCancel(ctx), reporter, jobs.NewEvent(id, mode, status, outputs, err))
	}()

	session, closeSession, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeSession(); err == nil {
			err = cerr
		}
	}()

	stats, err = fn(ctx, session, models)
	if err != nil {
		return err
	}

	for _, output := range stats.Outputs {
		fmt.Fprintf(a.out, "Rendered %s\n", output)
	}
	fmt.Fprintln(a.out, stats)

	if bucket != nil && !a.opts.dryRun && stats.Renders > 0 {
		dir := renderer.OutputDir(a.cfg.RenderPath, id)
		keys, err := bucket.UploadDir(ctx, dir, storage.RenderPrefix(id))
		if err != nil {
			return fmt.Errorf("uploading %s: %w", dir, err)
		}
		fmt.Fprintf(a.out, "Uploaded %d files to %s/%s\n", len(keys), bucket.Name(), storage.RenderPrefix(id))
	}
	return nil
}

// assemble builds s and renders every camera. Stats are returned even on
// failure so the status event lists the frames already on disk.
func (a *app) assemble(s *scene.Scene) pipeline {
	return func(ctx context.Context, session host.Session, models *loaders.Resolver) (*renderer.RenderStats, error) {
		res, err := assembler.New(session, models, a.cfg.Settings.Assembler, a.logger).Run(ctx, s, a.cfg.RenderPath)
		return res.Stats, err
	}
}

// openSession starts Blender, or a recorder for --dry-run. The returned
// close function quits the host.
func (a *app) openSession(ctx context.Context) (host.Session, func() error, error) {
	if a.opts.dryRun {
		rec := host.NewRecorder()
		return rec, func() error { return rec.Quit(context.WithoutCancel(ctx)) }, nil
	}

	s, err := blender.Start(ctx, blender.Options{
		Binary:   a.cfg.Blender.Binary,
		Template: a.cfg.Blender.Template,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return s, func() error {
		qerr := s.Quit(context.WithoutCancel(ctx))
		if cerr := s.Close(); qerr == nil {
			qerr = cerr
		}
		return qerr
	}, nil
}

func (a *app) reporter(ctx context.Context) jobs.Reporter {
	if a.opts.dryRun || !a.cfg.Redis.Enabled() {
		return jobs.NopReporter{}
	}
	r, err := jobs.NewRedisReporter(ctx, a.cfg.Redis)
	if err != nil {
		a.logger.Warn("status reporting disabled", "error", err)
		return jobs.NopReporter{}
	}
	return r
}

func (a *app) report(ctx context.Context, r jobs.Reporter, ev jobs.Event) {
	if err := r.Report(ctx, ev); err != nil {
		a.logger.Warn("reporting status failed", "id", ev.ID, "status", ev.Status, "error", err)
	}
}
