package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"eventscan/internal/audio"
	"eventscan/internal/classifier"
	"eventscan/internal/config"
	"eventscan/internal/detect"
	"eventscan/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewDetectCmd runs the pipeline on one file in the foreground.
func NewDetectCmd(cfgPath *string) *cobra.Command {
	var (
		modelPath  string
		device     string
		outPath    string
		table      bool
		verbose    bool
		noProgress bool
	)
	cmd := &cobra.Command{
		Use:   "detect <file>",
		Short: "Detect target events in an audio or video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if modelPath != "" {
				cfg.Model.Path = modelPath
			}
			if device != "" {
				cfg.Model.Device = device
			}
			logger := logging.ConfigureCLI(cfg, verbose)

			det := cfg.Detection.Merge(overridesFromFlags(cmd))
			if err := det.Validate(); err != nil {
				return describe(detect.Validation(err))
			}

			var bar *progressBar
			if !noProgress && isTerminal(cmd.ErrOrStderr()) {
				bar = newProgressBar(cmd.ErrOrStderr())
			}
			progress := detect.NewProgress(bar.Update)

			res, err := runDetect(cmd.Context(), cfg, det, args[0], progress, logger)
			bar.Close()
			if err != nil {
				return describe(err)
			}
			logger.Infof("Found %d segments", len(res.Segments))

			if outPath != "" {
				if err := writeResultFile(outPath, res); err != nil {
					return err
				}
			}
			if table {
				return printTable(cmd.OutOrStdout(), res)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	addDetectionFlags(cmd)
	cmd.Flags().StringVar(&modelPath, "model", "", "ONNX model path (overrides model.path)")
	cmd.Flags().StringVar(&device, "device", "", "auto, cpu or cuda (overrides model.device)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "also write the JSON result to this file")
	cmd.Flags().BoolVar(&table, "table", false, "print segments as a table")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline stages to stderr")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

func runDetect(ctx context.Context, cfg *config.Config, det config.Detection, input string, progress *detect.Progress, logger *logrus.Logger) (detect.Result, error) {
	opts, err := audio.OptionsFromConfig(cfg, logger)
	if err != nil {
		return detect.Result{}, detect.Validation(err)
	}
	sig, err := detect.LoadSignal(ctx, nil, input, opts, progress, logger)
	if err != nil {
		return detect.Result{}, err
	}

	progress.Report(detect.PercentLoadingModel, detect.StageLoadingModel)
	clf, err := classifier.Open(classifier.OptionsFromConfig(cfg, logger))
	if err != nil {
		return detect.Result{}, detect.OpenFailure(err)
	}
	defer clf.Close()
	logger.Infof("Model loaded on %s", clf.Capabilities().Backend)

	p := &detect.Pipeline{
		Classifier:   clf,
		Features:     cfg.Features,
		Detection:    det,
		ModelVersion: cfg.Model.Version,
		Logger:       logger,
	}
	return p.Run(ctx, sig, progress)
}

// addDetectionFlags registers the per-run detection overrides.
func addDetectionFlags(cmd *cobra.Command) {
	cmd.Flags().Int("window-ms", 0, "window size in milliseconds")
	cmd.Flags().Int("hop-ms", 0, "hop size in milliseconds")
	cmd.Flags().Float64("threshold", 0, "confidence threshold in [0,1]")
	cmd.Flags().Int("min-duration-ms", 0, "minimum segment duration in milliseconds")
	cmd.Flags().Int("merge-gap-ms", 0, "merge segments separated by at most this gap")
}

// overridesFromFlags returns only the flags the user set explicitly.
func overridesFromFlags(cmd *cobra.Command) *config.DetectionOverrides {
	o := &config.DetectionOverrides{}
	f := cmd.Flags()
	if f.Changed("window-ms") {
		v, _ := f.GetInt("window-ms")
		o.WindowSizeMS = &v
	}
	if f.Changed("hop-ms") {
		v, _ := f.GetInt("hop-ms")
		o.HopSizeMS = &v
	}
	if f.Changed("threshold") {
		v, _ := f.GetFloat64("threshold")
		o.ConfidenceThreshold = &v
	}
	if f.Changed("min-duration-ms") {
		v, _ := f.GetInt("min-duration-ms")
		o.MinSegmentDurationMS = &v
	}
	if f.Changed("merge-gap-ms") {
		v, _ := f.GetInt("merge-gap-ms")
		o.MergeGapMS = &v
	}
	return o
}

func printTable(w io.Writer, res detect.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTART\tEND\tDURATION\tCONFIDENCE\tLABEL")
	for i, s := range res.Segments {
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.2f\t%.3f\t%s\n", i+1, s.StartSeconds, s.EndSeconds, s.Duration(), s.Confidence, s.Label)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d segments, %.2fs of %.2fs detected (model %s)\n",
		len(res.Segments), res.DetectedDurationSeconds, res.TotalDurationSeconds, res.ModelVersion)
	return err
}

func writeResultFile(path string, res detect.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// describe prefixes err with its failure kind, keeping the chain intact.
func describe(err error) error {
	return fmt.Errorf("%s: %w", detect.KindOf(err), err)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
