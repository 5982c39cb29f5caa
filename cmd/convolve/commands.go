package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"go-convolve/pkg/imageio"
	"go-convolve/pkg/kernel"
	"go-convolve/pkg/queue"
	"go-convolve/pkg/stats"
)

func newFileCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "file INPUT OUTPUT",
		Short: "Filter a single image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := o.runContext(cmd.Context())
			defer cancel()

			p, err := a.pipeline(a.kernel)
			if err != nil {
				return err
			}
			r, err := p.RunFile(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%dx%d) in %.3fs\n",
				r.InputPath, r.OutputPath, r.Width, r.Height, r.Duration.Seconds())
			return nil
		},
	}
}

func newDirCmd(o *options) *cobra.Command {
	var sequential bool
	cmd := &cobra.Command{
		Use:   "dir INPUT_DIR OUTPUT_DIR",
		Short: "Filter every image in a directory",
		Long: "Filter every regular file in INPUT_DIR into OUTPUT_DIR under the same name, PNG encoded.\n" +
			"By default loading, filtering and saving overlap; files that fail are reported and skipped.\n" +
			"With --sequential, files are processed one at a time and the first failure stops the run.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := o.runContext(cmd.Context())
			defer cancel()

			p, err := a.pipeline(a.kernel)
			if err != nil {
				return err
			}
			run := p.Run
			if sequential {
				run = p.RunSequential
			}
			report, runErr := run(ctx, args[0], args[1])
			a.writeReport("dir_", report)
			printSummary(cmd, &report)

			if runErr != nil {
				return runErr
			}
			if failed := len(report.Failed()); failed > 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(report.Images))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&sequential, "sequential", false, "process one image at a time")
	return cmd
}

func newEnqueueCmd(o *options) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "enqueue INPUT_DIR OUTPUT_DIR",
		Short: "Queue one job per image on Redis for workers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := o.runContext(cmd.Context())
			defer cancel()

			inDir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			outDir, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			names, err := imageio.ListFiles(inDir)
			if err != nil {
				return err
			}

			streams, err := queue.Dial(ctx, a.cfg.Queue.RedisAddr, a.cfg.Queue.Prefix)
			if err != nil {
				return err
			}
			defer streams.Close()
			if err := streams.EnsureGroups(ctx); err != nil {
				return err
			}

			batch := strconv.FormatInt(time.Now().UnixNano(), 36)
			rec := stats.NewRecorder("Distributed", a.engine.Mode().String(), a.kernel.Size())
			for _, name := range names {
				job := &queue.JobMessage{
					Type:       queue.JobTypeFile,
					Batch:      batch,
					InputPath:  filepath.Join(inDir, name),
					OutputPath: filepath.Join(outDir, name),
					Kernel:     queue.KernelSpec{Name: a.cfg.Kernel.Name, Size: a.cfg.Kernel.Size},
					EnqueuedAt: time.Now(),
				}
				if _, err := streams.AddJob(ctx, job); err != nil {
					return err
				}
			}
			a.logger.Info("enqueue: jobs added", "batch", batch, "jobs", len(names))
			fmt.Fprintf(cmd.OutOrStdout(), "batch %s: enqueued %d jobs\n", batch, len(names))

			if !wait || len(names) == 0 {
				return nil
			}
			block, err := a.cfg.Queue.BlockTimeout()
			if err != nil {
				return err
			}
			err = streams.CollectResults(ctx, batch, len(names), block, func(res *queue.ResultMessage) {
				r := stats.ImageRecord{
					Name:       filepath.Base(res.InputPath),
					InputPath:  res.InputPath,
					OutputPath: res.OutputPath,
					Width:      res.Width,
					Height:     res.Height,
					Duration:   time.Duration(res.ProcessTime * float64(time.Second)),
				}
				if res.Error != "" {
					r.OutputPath = ""
					r.Err = fmt.Errorf("%s: %s", res.WorkerID, res.Error)
				}
				rec.Record(r)
			})
			report := rec.Finish()
			a.writeReport("distributed_", report)
			printSummary(cmd, &report)
			if err != nil {
				return err
			}
			if failed := len(report.Failed()); failed > 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(report.Images))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for every result and write a run report")
	return cmd
}

func newWorkerCmd(o *options) *cobra.Command {
	var consumer string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued jobs from Redis until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := o.runContext(cmd.Context())
			defer cancel()

			if consumer == "" {
				hostname, _ := os.Hostname()
				consumer = fmt.Sprintf("worker-%s-%d", hostname, os.Getpid())
			}
			block, err := a.cfg.Queue.BlockTimeout()
			if err != nil {
				return err
			}
			visibility, err := a.cfg.Queue.VisibilityTimeout()
			if err != nil {
				return err
			}

			streams, err := queue.Dial(ctx, a.cfg.Queue.RedisAddr, a.cfg.Queue.Prefix)
			if err != nil {
				return err
			}
			defer streams.Close()

			w := queue.NewWorker(streams, consumer, a.handleJob,
				queue.WithBlock(block),
				queue.WithVisibility(visibility),
				queue.WithWorkerLogger(a.logger))
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&consumer, "consumer", "", "consumer name in the workers group (default worker-<host>-<pid>)")
	return cmd
}

// handleJob filters the file named by job with the kernel the job asks for.
func (a *app) handleJob(ctx context.Context, job *queue.JobMessage) (queue.Outcome, error) {
	k, err := kernel.ByName(job.Kernel.Name, job.Kernel.Size)
	if err != nil {
		return queue.Outcome{}, err
	}
	p, err := a.pipeline(k)
	if err != nil {
		return queue.Outcome{}, err
	}
	r, err := p.RunFile(ctx, job.InputPath, job.OutputPath)
	return queue.Outcome{Width: r.Width, Height: r.Height}, err
}

func newKernelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kernels",
		Short: "List kernel presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tDESCRIPTION")
			for _, name := range kernel.Names() {
				doc, sized, _ := kernel.Describe(name)
				size := "fixed"
				if sized {
					size = "any odd"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, size, doc)
			}
			return tw.Flush()
		},
	}
}

func (a *app) writeReport(prefix string, report stats.Report) {
	if a.cfg.ReportDir == "" {
		return
	}
	path, err := stats.WriteResults(a.cfg.ReportDir, prefix, report)
	if err != nil {
		a.logger.Warn("failed to write run report", "error", err)
		return
	}
	a.logger.Info("run report written", "path", path)
}

func printSummary(cmd *cobra.Command, r *stats.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d written, %d failed, %.2fs total, %.3fs average\n",
		r.Algorithm, r.Succeeded(), len(r.Images)-r.Succeeded(), r.TotalTime.Seconds(), r.AverageTime().Seconds())
	for _, f := range r.Failed() {
		fmt.Fprintf(out, "  FAILED %s: %v\n", f.Name, f.Err)
	}
}
