package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zebadrabbit/HelpMePost/internal/imageopt"
)

type optimizeRow struct {
	src, dst string
	res      *imageopt.Result
}

func newOptimizeCmd(a *app) *cobra.Command {
	var (
		outDir   string
		workers  int
		maxBytes int
	)
	cmd := &cobra.Command{
		Use:   "optimize FILE...",
		Short: "Compress images under the upload byte budget",
		Long: `Optimizes each file with at most --workers files in flight and writes the
result to --out. Files already under budget are copied unchanged.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers < 1 {
				return fmt.Errorf("--workers must be at least 1, got %d", workers)
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			opt := imageopt.Default()
			opt.MaxBytes = maxBytes

			stems := outputStems(args)
			rows := make([]optimizeRow, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(workers)
			for i, src := range args {
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					data, err := os.ReadFile(src)
					if err != nil {
						return err
					}
					res, err := opt.Optimize(data)
					if err != nil {
						return fmt.Errorf("%s: %w", src, err)
					}
					name := stems[i] + filepath.Ext(src)
					if res.Compressed {
						name = stems[i] + ".jpg"
					}
					dst := filepath.Join(outDir, name)
					if err := os.WriteFile(dst, res.Data, 0o644); err != nil {
						return err
					}
					rows[i] = optimizeRow{src: src, dst: dst, res: res}
					a.log.Debug("optimized", zap.String("file", src), zap.Int("iterations", res.Iterations))
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			compressed := 0
			for _, r := range rows {
				status := "unchanged"
				if r.res.Compressed {
					status = fmt.Sprintf("compressed q%d", r.res.Quality)
					compressed++
				}
				fmt.Fprintf(a.out, "%s -> %s\t%d -> %d bytes\t%dx%d\t%s\n",
					r.src, r.dst, r.res.OriginalSize, len(r.res.Data), r.res.Width, r.res.Height, status)
			}
			fmt.Fprintf(a.out, "%d image(s) compressed\n", compressed)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&outDir, "out", "optimized", "output directory")
	f.IntVar(&workers, "workers", runtime.NumCPU(), "files optimized at once")
	f.IntVar(&maxBytes, "max-bytes", imageopt.DefaultMaxBytes, "byte budget per image")
	return cmd
}

// outputStems assigns each source a file stem that no other source in the
// batch shares, case-insensitively, adding -2, -3, ... on collision. A
// stem is unique regardless of the extension the output ends up with.
func outputStems(srcs []string) []string {
	taken := make(map[string]bool, len(srcs))
	stems := make([]string, len(srcs))
	for i, src := range srcs {
		base := filepath.Base(src)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		stem := base
		for n := 2; taken[strings.ToLower(stem)]; n++ {
			stem = fmt.Sprintf("%s-%d", base, n)
		}
		taken[strings.ToLower(stem)] = true
		stems[i] = stem
	}
	return stems
}
