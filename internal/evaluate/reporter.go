package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Reporter generates evaluation reports
type Reporter struct {
	results    *Results
	outputPath string
}

func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport writes summary.txt, predictions.csv and report.json.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generatePredictionLog(); err != nil {
		return err
	}
	return r.generateJSONReport()
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.writeSummary(file)

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

func (r *Reporter) writeSummary(w io.Writer) {
	res := r.results
	fmt.Fprintf(w, "EVALUATION RESULTS SUMMARY\n")
	fmt.Fprintf(w, "==========================\n\n")

	if res.ModelType != "" {
		fmt.Fprintf(w, "Model: %s\n", res.ModelType)
	}
	fmt.Fprintf(w, "Duration: %s\n\n", res.EndTime.Sub(res.StartTime).Round(time.Millisecond))

	fmt.Fprintf(w, "SAMPLES\n")
	fmt.Fprintf(w, "-------\n")
	fmt.Fprintf(w, "Total: %d\n", res.TotalSamples)
	fmt.Fprintf(w, "Evaluated: %d\n", res.Evaluated)
	fmt.Fprintf(w, "Failed: %d\n", res.Failed)
	fmt.Fprintf(w, "Skipped: %d\n\n", res.Skipped)

	fmt.Fprintf(w, "CLASSIFICATION METRICS\n")
	fmt.Fprintf(w, "----------------------\n")
	fmt.Fprintf(w, "Accuracy: %.2f%%\n", res.Accuracy*100)
	fmt.Fprintf(w, "Precision: %.2f%%\n", res.Precision*100)
	fmt.Fprintf(w, "Recall: %.2f%%\n", res.Recall*100)
	fmt.Fprintf(w, "F1: %.4f\n\n", res.F1)

	c := res.Confusion
	fmt.Fprintf(w, "CONFUSION MATRIX\n")
	fmt.Fprintf(w, "----------------\n")
	fmt.Fprintf(w, "%-22s %12s %16s\n", "", "Pred Legend.", "Pred Non-Legend.")
	fmt.Fprintf(w, "%-22s %12d %16d\n", "Actual Legendary", c.TruePositives, c.FalseNegatives)
	fmt.Fprintf(w, "%-22s %12d %16d\n\n", "Actual Non-Legendary", c.FalsePositives, c.TrueNegatives)

	fmt.Fprintf(w, "EXPLANATIONS\n")
	fmt.Fprintf(w, "------------\n")
	for _, method := range sortedKeys(res.MethodCounts) {
		fmt.Fprintf(w, "%s: %d\n", method, res.MethodCounts[method])
	}
	for _, level := range sortedKeys(res.ConfidenceCounts) {
		fmt.Fprintf(w, "Confidence %s: %d\n", level, res.ConfidenceCounts[level])
	}
	fmt.Fprintf(w, "Mean Latency: %s\n", res.MeanLatency)
}

// generatePredictionLog writes one CSV row per evaluated sample.
func (r *Reporter) generatePredictionLog() error {
	csvPath := filepath.Join(r.outputPath, "predictions.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create prediction log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{
		"name", "hp", "attack", "defense", "sp_attack", "sp_defense", "speed",
		"legendary", "predicted", "probability_legendary", "confidence",
		"explanation_method", "top_feature", "latency_ms", "error",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, o := range r.results.Outcomes {
		record := []string{o.Name}
		for _, v := range o.Stats.Ints() {
			record = append(record, strconv.Itoa(v))
		}
		record = append(record,
			strconv.Itoa(o.Legendary),
			strconv.Itoa(o.Predicted),
			fmt.Sprintf("%.6f", o.ProbLegendary),
			o.Confidence,
			o.Method,
			o.TopFeature,
			fmt.Sprintf("%.3f", float64(o.Latency)/float64(time.Millisecond)),
			o.Error,
		)
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write prediction log: %w", err)
	}

	log.Info().Str("file", csvPath).Msg("Prediction log generated")
	return nil
}

func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "report.json")

	report := map[string]interface{}{
		"summary":       r.results,
		"misclassified": r.misclassified(),
		"generated_at":  time.Now(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

func (r *Reporter) misclassified() []Outcome {
	out := make([]Outcome, 0)
	for _, o := range r.results.Outcomes {
		if o.Error == "" && !o.Correct() {
			out = append(out, o)
		}
	}
	return out
}

// PrintSummary prints a short summary to w
func (r *Reporter) PrintSummary(w io.Writer) {
	res := r.results
	fmt.Fprintln(w, "\n=== EVALUATION RESULTS ===")
	fmt.Fprintf(w, "Samples: %d evaluated, %d failed, %d skipped\n", res.Evaluated, res.Failed, res.Skipped)
	fmt.Fprintf(w, "Accuracy: %.2f%%\n", res.Accuracy*100)
	fmt.Fprintf(w, "Precision: %.2f%%\n", res.Precision*100)
	fmt.Fprintf(w, "Recall: %.2f%%\n", res.Recall*100)
	fmt.Fprintf(w, "F1: %.4f\n", res.F1)
	for _, method := range sortedKeys(res.MethodCounts) {
		fmt.Fprintf(w, "Method %s: %d\n", method, res.MethodCounts[method])
	}
	fmt.Fprintf(w, "Mean Latency: %s\n", res.MeanLatency)
	fmt.Fprintln(w, "==========================")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
