package ml

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"legendary-classifier/internal/common"
	"legendary-classifier/internal/features"
)

// Explanation method labels
const (
	MethodSHAP             = "SHAP"
	MethodFallback         = "fallback (importance-based)"
	MethodFallbackZeroShap = "fallback (SHAP returned zeros)"
)

// Impact and magnitude labels
const (
	ImpactPositive = "Positive"
	ImpactNegative = "Negative"
	ImpactNeutral  = "Neutral"

	MagnitudeHigh   = "High"
	MagnitudeMedium = "Medium"
	MagnitudeLow    = "Low"
)

// SHAP labelling thresholds
const (
	shapNeutral = 0.001
	shapHigh    = 0.1
	shapMedium  = 0.03
)

// Contribution is the attribution of one feature to a prediction.
type Contribution struct {
	Feature      string  `json:"feature"`
	DisplayName  string  `json:"display_name"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
	Impact       string  `json:"impact"`
	Magnitude    string  `json:"magnitude"`
	Explanation  string  `json:"explanation"`
}

type ShapStatus int

const (
	ShapOK ShapStatus = iota
	// ShapDegenerate means every value was zero or some value was NaN.
	ShapDegenerate
	ShapFailed
)

func (s ShapStatus) String() string {
	switch s {
	case ShapOK:
		return "ok"
	case ShapDegenerate:
		return "degenerate"
	default:
		return "failed"
	}
}

// ShapResult is the outcome of one explainer call.
type ShapResult struct {
	Status ShapStatus
	Values []float64
	Err    error
}

// AttributionInput is everything the engine needs for one prediction.
type AttributionInput struct {
	Features      []float64
	Stats         features.StatVector
	Prediction    int
	ProbLegendary float64
	Importance    *ImportanceTable
}

// AttributionEngine picks between Shapley attribution and the fallback.
// A nil explainer is valid and always yields the fallback.
type AttributionEngine struct {
	explainer Explainer
	timeout   time.Duration
	metrics   MetricsInterface
}

func NewAttributionEngine(explainer Explainer, timeout time.Duration, metrics MetricsInterface) *AttributionEngine {
	return &AttributionEngine{
		explainer: explainer,
		timeout:   timeout,
		metrics:   metrics,
	}
}

// HasExplainer reports whether the Shapley path is configured.
func (e *AttributionEngine) HasExplainer() bool { return e.explainer != nil }

// Attribute returns six contributions sorted by descending magnitude and
// the method that produced them.
func (e *AttributionEngine) Attribute(ctx context.Context, in AttributionInput) ([]Contribution, string) {
	importance := in.Importance
	if importance == nil {
		importance = UniformImportance()
	}

	method := MethodFallback
	var contributions []Contribution

	if e.explainer != nil {
		res := e.computeShap(ctx, in.Features)
		switch res.Status {
		case ShapOK:
			contributions, method = ShapContributions(in.Stats, res.Values), MethodSHAP
		case ShapDegenerate:
			log.Warn().Floats64("shap_values", res.Values).Msg("SHAP returned all zeros or NaN, using fallback")
			method = MethodFallbackZeroShap
		case ShapFailed:
			if e.metrics != nil {
				e.metrics.ShapFailuresInc()
			}
			log.Warn().Err(res.Err).Str("explainer", e.explainer.Kind()).Msg("SHAP calculation failed, using fallback")
		}
	}

	if contributions == nil {
		if e.metrics != nil {
			e.metrics.FallbackUseInc()
		}
		contributions = FallbackContributions(in.Stats, in.Prediction, in.ProbLegendary, importance)
	}

	if e.metrics != nil {
		e.metrics.ExplanationMethodInc(method)
	}
	return contributions, method
}

// computeShap runs the explainer under the configured timeout. Panics and
// late results both count as failures.
func (e *AttributionEngine) computeShap(ctx context.Context, x []float64) ShapResult {
	ctx, span := otel.Tracer(common.TracerName).Start(ctx, "ml.shap_values")
	defer span.End()
	span.SetAttributes(attribute.String("explainer.kind", e.explainer.Kind()))

	start := time.Now()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan ShapResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- ShapResult{Status: ShapFailed, Err: fmt.Errorf("explainer panicked: %v", r)}
			}
		}()
		done <- e.evaluate(ctx, x)
	}()

	var res ShapResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = ShapResult{Status: ShapFailed, Err: fmt.Errorf("explainer did not finish: %w", ctx.Err())}
	}

	if e.metrics != nil {
		e.metrics.ShapLatencyObserve(time.Since(start).Seconds())
	}
	span.SetAttributes(attribute.String("shap.status", res.Status.String()))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

func (e *AttributionEngine) evaluate(ctx context.Context, x []float64) ShapResult {
	out, err := e.explainer.ShapValues(ctx, x)
	if err != nil {
		return ShapResult{Status: ShapFailed, Err: err}
	}
	values, err := out.legendaryValues()
	if err != nil {
		return ShapResult{Status: ShapFailed, Err: err}
	}
	if len(values) != features.NumFeatures {
		return ShapResult{Status: ShapFailed, Err: fmt.Errorf("explainer returned %d values, expected %d", len(values), features.NumFeatures)}
	}
	values = append([]float64(nil), values...)
	if degenerate(values) {
		return ShapResult{Status: ShapDegenerate, Values: values}
	}
	return ShapResult{Status: ShapOK, Values: values}
}

func degenerate(values []float64) bool {
	allZero := true
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
		if v != 0 {
			allZero = false
		}
	}
	return allZero
}

// ShapContributions labels raw Shapley values for the legendary class.
func ShapContributions(stats features.StatVector, values []float64) []Contribution {
	raw := stats.Ints()
	out := make([]Contribution, features.NumFeatures)
	for i, name := range features.FeatureNames {
		c := values[i]
		impact, magnitude := shapLabels(c)
		out[i] = Contribution{
			Feature:      name,
			DisplayName:  features.DisplayName(name),
			Value:        float64(raw[i]),
			Contribution: c,
			Impact:       impact,
			Magnitude:    magnitude,
			Explanation:  shapExplanation(impact),
		}
	}
	sortByMagnitude(out)
	return out
}

func shapLabels(c float64) (impact, magnitude string) {
	abs := math.Abs(c)
	if abs < shapNeutral {
		return ImpactNeutral, MagnitudeLow
	}
	impact = ImpactNegative
	if c > 0 {
		impact = ImpactPositive
	}
	switch {
	case abs > shapHigh:
		return impact, MagnitudeHigh
	case abs > shapMedium:
		return impact, MagnitudeMedium
	default:
		return impact, MagnitudeLow
	}
}

func shapExplanation(impact string) string {
	switch impact {
	case ImpactPositive:
		return "Pushes prediction toward Legendary"
	case ImpactNegative:
		return "Pushes prediction toward Non-Legendary"
	default:
		return "Minimal impact on prediction"
	}
}

func sortByMagnitude(c []Contribution) {
	sort.SliceStable(c, func(i, j int) bool {
		return math.Abs(c[i].Contribution) > math.Abs(c[j].Contribution)
	})
}
