package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"blurchain/internal/config"
	"blurchain/internal/fileutil"
	"blurchain/internal/pipeline"
	"blurchain/internal/presenter"
	"blurchain/internal/workflow"
)

func newBlurCommand(ctx *commandContext) *cobra.Command {
	var imagePath string
	var level int
	var requireCharging bool
	var openResult bool
	var name string

	cmd := &cobra.Command{
		Use:   "blur",
		Short: "Blur an image and save the result",
		Long: `Run the cleanup, blur, and save stages for one image.

Press Ctrl-C to cancel the run. Starting a second run under the same name
replaces the first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			source, err := resolveImage(imagePath, cfg.Blur.DefaultImage)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("level") {
				level = cfg.Blur.DefaultLevel
			}
			if level < pipeline.MinBlurLevel || level > pipeline.MaxBlurLevel {
				return fmt.Errorf("blur level must be between %d and %d", pipeline.MinBlurLevel, pipeline.MaxBlurLevel)
			}
			if !cmd.Flags().Changed("require-charging") {
				requireCharging = cfg.Blur.RequireCharging
			}
			if strings.TrimSpace(name) == "" {
				name = cfg.Workflow.PipelineName
			}

			lock := flock.New(cfg.LockPath())
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return errors.New("another blurchain run is already active")
			}
			defer func() { _ = lock.Unlock() }()

			a, err := newApp(cmd.Context(), cfg, nil, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, h := range a.controller.HealthCheck(cmd.Context()) {
				if !h.Ready {
					fmt.Fprintln(out, renderStatusLine(h.Name, statusWarn, h.Detail, colorize))
				}
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := presenter.New(a.controller, presenter.Options{
				Name:            name,
				ImageLocator:    fileutil.Locator(source),
				RequireCharging: requireCharging,
				Logger:          logger,
			})
			return runBlur(runCtx, out, p, a.controller, level, openResult, colorize)
		},
	}

	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Image to blur (defaults to blur.default_image)")
	cmd.Flags().IntVarP(&level, "level", "l", 1, "Number of blur passes (1-3)")
	cmd.Flags().BoolVar(&requireCharging, "require-charging", true, "Defer saving until the device is charging")
	cmd.Flags().BoolVar(&openResult, "open", false, "Open the saved image when done")
	cmd.Flags().StringVar(&name, "name", "", "Unique pipeline name (defaults to workflow.pipeline_name)")
	return cmd
}

type latestSource interface {
	Latest(tag string) (workflow.StateEvent, bool)
}

// runBlur starts the pipeline through the presenter, renders every view
// change, and waits for the run to end. Cancelling ctx cancels the run.
func runBlur(ctx context.Context, out io.Writer, p *presenter.Presenter, latest latestSource, level int, openResult, colorize bool) error {
	watchCtx, stopWatch := context.WithCancel(context.Background())
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		_ = p.Watch(watchCtx, func(v presenter.View) {
			fmt.Fprintln(out, renderView(v, colorize))
		})
	}()

	ref, err := p.ApplyBlur(ctx, level)
	if err != nil {
		stopWatch()
		<-watchDone
		return err
	}

	select {
	case <-ref.Done():
	case <-ctx.Done():
		p.CancelWork()
		<-ref.Done()
	}
	stopWatch()
	<-watchDone

	if evt, ok := latest.Latest(pipeline.TagOutput); ok {
		p.Handle(evt)
	}
	view := p.View()
	if view.RunID != ref.ID || view.Phase != presenter.PhaseFinished {
		return fmt.Errorf("run %d ended without a final state", ref.ID)
	}

	switch view.StageState {
	case workflow.StateSucceeded:
		path, err := fileutil.PathFromLocator(view.OutputLocator)
		if err != nil {
			path = view.OutputLocator
		}
		fmt.Fprintln(out, renderStatusLine("Saved", statusOK, path, colorize))
		if openResult && view.Controls.SeeFile {
			opened, err := p.OpenResult()
			if err != nil {
				return err
			}
			if !opened {
				fmt.Fprintln(out, renderStatusLine("Open", statusWarn, "no application available", colorize))
			}
		}
		return nil
	case workflow.StateCancelled:
		fmt.Fprintln(out, renderStatusLine("Cancelled", statusWarn, view.Detail, colorize))
		if ctx.Err() != nil {
			return context.Canceled
		}
		return nil
	default:
		return fmt.Errorf("blur run %d failed: %s", ref.ID, view.Error)
	}
}

func resolveImage(flagValue, fallback string) (string, error) {
	raw := strings.TrimSpace(flagValue)
	if raw == "" {
		raw = strings.TrimSpace(fallback)
	}
	if raw == "" {
		return "", errors.New("an input image is required (use --image or set blur.default_image)")
	}
	if strings.Contains(raw, "://") {
		path, err := fileutil.PathFromLocator(raw)
		if err != nil {
			return "", err
		}
		raw = path
	}
	path, err := config.ExpandPath(raw)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("input image: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("input image %s is a directory", path)
	}
	return path, nil
}
