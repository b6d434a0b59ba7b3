package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"

	"legendary-classifier/internal/cfg"
	"legendary-classifier/internal/client"
	"legendary-classifier/internal/evaluate"
	"legendary-classifier/internal/features"
	"legendary-classifier/internal/ml"
	"legendary-classifier/internal/storage"
)

const statsUsage = "HP ATTACK DEFENSE SP_ATTACK SP_DEFENSE SPEED"

// parseStats reads the six stats in feature order.
func parseStats(args []string) (features.StatVector, error) {
	if len(args) != features.NumFeatures {
		return features.StatVector{}, fmt.Errorf("expected %d stats (%s), got %d", features.NumFeatures, statsUsage, len(args))
	}
	values := make([]float64, features.NumFeatures)
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return features.StatVector{}, fmt.Errorf("invalid %s %q", features.FeatureNames[i], arg)
		}
		values[i] = float64(v)
	}
	stats, err := features.FromValues(values)
	if err != nil {
		return features.StatVector{}, err
	}
	return stats, stats.Validate()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newClient() *client.Client {
	return client.New(serverURL, timeout)
}

// predictCmd classifies one Pokémon
func predictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict " + statsUsage,
		Short: "Classify a Pokémon and explain the prediction",
		Args:  cobra.ExactArgs(features.NumFeatures),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := parseStats(args)
			if err != nil {
				return err
			}
			result, err := newClient().Predict(cmd.Context(), stats)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, result)
			}

			label := "Non-Legendary"
			if result.Prediction == 1 {
				label = "Legendary"
			}
			fmt.Fprintf(out, "Prediction: %s (%.1f%% legendary, %s confidence)\n",
				label, result.ProbabilityLegendary*100, result.Confidence)
			fmt.Fprintf(out, "BST: %d (%s)\n", result.BST, result.BSTTier)
			fmt.Fprintf(out, "Explanation: %s\n\n", result.ExplanationMethod)
			for _, c := range result.FeatureContributions {
				fmt.Fprintf(out, "  %-16s %4.0f  %+.4f  %-8s %-6s %s\n",
					c.DisplayName, c.Value, c.Contribution, c.Impact, c.Magnitude, c.Explanation)
			}
			return nil
		},
	}
}

// similarCmd lists the nearest training Pokémon
func similarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "similar " + statsUsage,
		Short: "Find the most similar Pokémon in the training set",
		Args:  cobra.ExactArgs(features.NumFeatures),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := parseStats(args)
			if err != nil {
				return err
			}
			report, err := newClient().Similar(cmd.Context(), stats)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, report)
			}
			for i, p := range report.SimilarPokemon {
				tag := ""
				if p.Legendary == 1 {
					tag = " [Legendary]"
				}
				fmt.Fprintf(out, "%d. %s (distance %.2f, BST %d)%s\n", i+1, p.Name, p.Distance, p.BST, tag)
			}
			return nil
		},
	}
}

// importanceCmd prints the global feature ranking
func importanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "importance",
		Short: "Show global feature importance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := newClient().FeatureImportance(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, report)
			}
			fmt.Fprintf(out, "Model: %s (%s)\n", report.ModelType, report.ImportanceType)
			for _, f := range report.Features {
				fmt.Fprintf(out, "  %-16s %.4f\n", f.DisplayName, f.Importance)
			}
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show which artifacts the server has loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := newClient().Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), health)
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent predictions served by the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := newClient().History(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, history)
			}
			fmt.Fprintf(out, "Showing %d of %d predictions\n", history.Count, history.Total)
			for _, r := range history.Predictions {
				fmt.Fprintf(out, "%s  %s  BST %3d  p=%.3f  %s\n",
					r.Timestamp.Format("2006-01-02 15:04:05"), r.Stats.Key(), r.BST, r.ProbabilityLegendary, r.ExplanationMethod)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of predictions (server default when 0)")
	return cmd
}

// evaluateCmd replays a labelled dataset through a locally built predictor
func evaluateCmd() *cobra.Command {
	var (
		dataPath   string
		outputPath string
		workers    int
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate the model offline against a labelled dataset",
		Long: `Loads the model artifacts named by the service configuration, runs every
sample of the dataset through the predictor and writes summary.txt,
predictions.csv and report.json to the output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if dataPath == "" {
				dataPath = c.TrainingDataPath
			}

			artifacts := ml.LoadArtifacts(ml.ArtifactPaths{
				Model:             c.ModelPath,
				Scaler:            c.ScalerPath,
				FeatureImportance: c.FeatureImportancePath,
				TrainingData:      c.TrainingDataPath,
				BackgroundData:    c.BackgroundDataPath,
				ShapEnabled:       c.ShapEnabled,
			})
			if artifacts.Model == nil {
				return fmt.Errorf("model could not be loaded from %s", c.ModelPath)
			}
			predictor := ml.NewPredictor(artifacts, ml.WithShapTimeout(c.ShapTimeout))

			return runEvaluation(cmd.Context(), cmd.OutOrStdout(), predictor, dataPath, outputPath, workers)
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "", "Labelled CSV or JSON dataset (defaults to the training data)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "evaluation", "Output directory for reports")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "Concurrent predictions")
	return cmd
}

func runEvaluation(ctx context.Context, out io.Writer, predictor ml.PredictorInterface, dataPath, outputPath string, workers int) error {
	loader := evaluate.NewDataLoader()
	if err := loader.Load(dataPath); err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}

	engine := evaluate.NewEngine(predictor, loader, workers)
	if err := engine.Run(ctx); err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	reporter := evaluate.NewReporter(engine.GetResults(), outputPath)
	if err := reporter.GenerateReport(); err != nil {
		return fmt.Errorf("failed to generate reports: %w", err)
	}
	reporter.PrintSummary(out)
	fmt.Fprintf(out, "Reports written to %s\n", outputPath)
	return nil
}

// exportCmd dumps the history database as CSV
func exportCmd() *cobra.Command {
	var (
		dataPath   string
		outputFile string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the prediction history database as CSV",
		Long: `Reads the history database directly, so the server should be stopped
or the export will wait for the database lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.New(dataPath)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if outputFile != "" {
				f, err := os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			n, err := store.ExportCSV(out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d predictions\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dataPath, "data-path", "d", "data", "Directory holding the history database")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (stdout when empty)")
	return cmd
}
