// Package evaluate replays a labelled dataset through the predictor and
// reports classification quality and how each prediction was explained.
package evaluate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"legendary-classifier/internal/ml"
)

// Outcome is the evaluation of one sample.
type Outcome struct {
	Sample
	Predicted     int           `json:"predicted"`
	ProbLegendary float64       `json:"probability_legendary"`
	Confidence    string        `json:"confidence"`
	Method        string        `json:"explanation_method"`
	TopFeature    string        `json:"top_feature,omitempty"`
	Latency       time.Duration `json:"latency_ns"`
	Error         string        `json:"error,omitempty"`

	modelType string
}

func (o Outcome) Correct() bool {
	return o.Error == "" && o.Predicted == o.Legendary
}

// ConfusionMatrix counts predictions against labels, legendary being the
// positive class.
type ConfusionMatrix struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalseNegatives int `json:"false_negatives"`
}

// Results holds evaluation results
type Results struct {
	Outcomes         []Outcome       `json:"-"`
	TotalSamples     int             `json:"total_samples"`
	Evaluated        int             `json:"evaluated"`
	Failed           int             `json:"failed"`
	Skipped          int             `json:"skipped"`
	Confusion        ConfusionMatrix `json:"confusion_matrix"`
	Accuracy         float64         `json:"accuracy"`
	Precision        float64         `json:"precision"`
	Recall           float64         `json:"recall"`
	F1               float64         `json:"f1"`
	MethodCounts     map[string]int  `json:"method_counts"`
	ConfidenceCounts map[string]int  `json:"confidence_counts"`
	MeanLatency      time.Duration   `json:"mean_latency_ns"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	ModelType        string          `json:"model_type,omitempty"`
}

// Engine runs samples through a predictor with a bounded worker pool.
type Engine struct {
	predictor ml.PredictorInterface
	data      *DataLoader
	workers   int
	results   *Results
}

func NewEngine(predictor ml.PredictorInterface, data *DataLoader, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		predictor: predictor,
		data:      data,
		workers:   workers,
		results: &Results{
			MethodCounts:     make(map[string]int),
			ConfidenceCounts: make(map[string]int),
		},
	}
}

// Run evaluates every loaded sample. Per-sample prediction errors are
// recorded on the outcome; Run only fails when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	samples := e.data.Samples()
	log.Info().
		Int("samples", len(samples)).
		Int("workers", e.workers).
		Msg("Starting evaluation")

	e.results.StartTime = time.Now()
	outcomes := make([]Outcome, len(samples))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = e.evaluate(ctx, samples[i])
			}
		}()
	}

	var err error
feed:
	for i := range samples {
		select {
		case jobs <- i:
		case <-ctx.Done():
			err = fmt.Errorf("evaluation interrupted: %w", ctx.Err())
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	e.results.EndTime = time.Now()
	if err != nil {
		return err
	}

	e.results.Outcomes = outcomes
	e.results.Skipped = e.data.Skipped()
	e.calculateMetrics()

	log.Info().
		Int("evaluated", e.results.Evaluated).
		Int("failed", e.results.Failed).
		Float64("accuracy", e.results.Accuracy).
		Msg("Evaluation finished")
	return nil
}

func (e *Engine) evaluate(ctx context.Context, s Sample) Outcome {
	out := Outcome{Sample: s}
	start := time.Now()
	result, err := e.predictor.Predict(ctx, s.Stats)
	out.Latency = time.Since(start)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	out.Predicted = result.Prediction
	out.ProbLegendary = result.ProbabilityLegendary
	out.Confidence = result.Confidence
	out.Method = result.ExplanationMethod
	if len(result.FeatureContributions) > 0 {
		out.TopFeature = result.FeatureContributions[0].Feature
	}
	out.modelType = result.ModelType
	return out
}

func (e *Engine) calculateMetrics() {
	r := e.results
	r.TotalSamples = len(r.Outcomes)

	var totalLatency time.Duration
	for _, o := range r.Outcomes {
		if o.Error != "" {
			r.Failed++
			continue
		}
		r.Evaluated++
		if r.ModelType == "" {
			r.ModelType = o.modelType
		}
		totalLatency += o.Latency
		r.MethodCounts[o.Method]++
		r.ConfidenceCounts[o.Confidence]++

		switch {
		case o.Predicted == 1 && o.Legendary == 1:
			r.Confusion.TruePositives++
		case o.Predicted == 1:
			r.Confusion.FalsePositives++
		case o.Legendary == 1:
			r.Confusion.FalseNegatives++
		default:
			r.Confusion.TrueNegatives++
		}
	}

	if r.Evaluated == 0 {
		return
	}

	c := r.Confusion
	r.Accuracy = float64(c.TruePositives+c.TrueNegatives) / float64(r.Evaluated)
	r.Precision = ratio(c.TruePositives, c.TruePositives+c.FalsePositives)
	r.Recall = ratio(c.TruePositives, c.TruePositives+c.FalseNegatives)
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	r.MeanLatency = totalLatency / time.Duration(r.Evaluated)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// GetResults returns the evaluation results
func (e *Engine) GetResults() *Results {
	return e.results
}
