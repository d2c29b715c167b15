package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/fatih/color"
	"github.com/forest-guardian/ricemap/internal/config"
	"github.com/forest-guardian/ricemap/internal/delivery"
	"github.com/forest-guardian/ricemap/internal/properties"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// exitInterrupted is returned when the run is stopped by SIGINT or SIGTERM.
const exitInterrupted = 11

var (
	cfg     *config.Config
	cfgFile string

	direction    string
	selection    string
	intermediate bool
	masks        bool
	lzw          bool
	noReproject  bool
	threads      int
	thresholds   string
)

var rootCmd = &cobra.Command{
	Use:   "ricemap <data_dir> <orbit> <start YYYYMMDD> <end YYYYMMDD> <output_dir>",
	Short: "Map rice paddies from a Sentinel-1 VH backscatter time series",
	Long: "Reduces a stack of co-registered VH scenes to temporal statistics, classifies every pixel " +
		"as rice, urban/trees, water or other, and writes the maps as compressed GeoTIFFs.",
	Args:          cobra.ExactArgs(5),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := applyFlags(cmd, c); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		godal.RegisterAll()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := delivery.RunRicemap(cmd.Context(), delivery.Request{
			DataDir:   args[0],
			Orbit:     args[1],
			Start:     args[2],
			End:       args[3],
			OutputDir: args[4],
			Direction: direction,
		}, *cfg)
		if err != nil {
			return err
		}
		printSummary(res)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./ricemap.yaml)")
	pf.StringVarP(&direction, "direction", "d", "DES", "orbit direction, ASC or DES")
	pf.StringVar(&selection, "selection", "", "scene selection: all, finalized or unfinalized")

	f := rootCmd.Flags()
	f.BoolVarP(&intermediate, "intermediate", "i", false, "also write the four temporal statistic rasters")
	f.BoolVarP(&masks, "masks", "m", false, "also write one binary mask per class")
	f.BoolVar(&lzw, "lzw", false, "use the compatibility codec (LZW) instead of DEFLATE")
	f.BoolVar(&noReproject, "no-reproject", false, "keep the source projection")
	f.IntVarP(&threads, "threads", "t", 0, "worker count (default host dependent)")
	f.StringVar(&thresholds, "thresholds", "", "rice,urban,water thresholds in dB, e.g. 5,-18,-18")

	rootCmd.AddCommand(scenesCmd, configCmd)
}

// applyFlags overrides configuration values with the flags set on cmd.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("selection") {
		c.Catalog.Selection = selection
	}
	if changed("intermediate") {
		c.Output.Intermediate = intermediate
	}
	if changed("masks") {
		c.Output.Masks = masks
	}
	if changed("lzw") {
		c.Output.CompatMode = lzw
	}
	if changed("no-reproject") && noReproject {
		c.Output.ReprojectSRS = ""
	}
	if changed("threads") {
		c.Processing.Threads = threads
	}
	if changed("thresholds") {
		t, err := parseThresholds(thresholds)
		if err != nil {
			return err
		}
		c.Thresholds = t
	}
	return nil
}

func parseThresholds(s string) (config.ThresholdsConfig, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return config.ThresholdsConfig{}, eris.Wrapf(config.ErrInvalid, "thresholds want rice,urban,water, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return config.ThresholdsConfig{}, eris.Wrapf(config.ErrInvalid, "threshold %q: %v", p, err)
		}
		v[i] = f
	}
	return config.ThresholdsConfig{RiceDB: v[0], UrbanDB: v[1], WaterDB: v[2]}, nil
}

func printSummary(res *delivery.Result) {
	color.Cyan("Ricemap done: %d scenes in %s, peak memory %.2f GiB", len(res.Scenes), res.Elapsed.Round(time.Millisecond), res.PeakGiB)
	for _, c := range properties.Classes {
		fmt.Printf("  %-7s %d\n", c, res.Histogram[c])
	}
	for _, p := range res.Products {
		color.Green("  %s", p.Path)
	}
	if res.ManifestPath != "" {
		fmt.Printf("  manifest %s\n", res.ManifestPath)
	}
}

func exitCode(ctx context.Context, err error) int {
	if errors.Is(err, context.Canceled) || eris.Is(err, context.Canceled) || ctx.Err() != nil {
		return exitInterrupted
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		code := exitCode(ctx, err)
		if code == exitInterrupted {
			zap.L().Warn("interrupted, no product written")
			color.Red("Interrupted")
		} else {
			zap.L().Error("ricemap failed", zap.Error(err))
			color.Red("Error: %v", err)
		}
		_ = zap.L().Sync()
		stop()
		os.Exit(code)
	}
}
