package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/attrition/internal/explain"
	"github.com/kiranshivaraju/attrition/internal/model"
)

// ModelSummary describes a pipeline artifact on disk.
type ModelSummary struct {
	ModelVersion        string             `json:"model_version"`
	TrainingDate        string             `json:"training_date"`
	Trees               int                `json:"trees"`
	NumericFeatures     int                `json:"numeric_features"`
	CategoricalFeatures int                `json:"categorical_features"`
	EncodedColumns      int                `json:"encoded_columns"`
	PerformanceMetrics  map[string]float64 `json:"performance_metrics"`
	ExplainerAvailable  bool               `json:"explainer_available"`
	ExpectedValue       *float64           `json:"expected_value,omitempty"`
}

type modelPaths struct {
	pipeline string
	metadata string
}

func (p *modelPaths) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.pipeline, "model", "", "pipeline artifact path (defaults to MODEL_PATH)")
	cmd.Flags().StringVar(&p.metadata, "metadata", "", "feature metadata path (defaults to MODEL_METADATA_PATH)")
}

func (p *modelPaths) resolve(rootOpts *RootOptions) (pipeline, metadata string, err error) {
	pipeline, metadata = p.pipeline, p.metadata
	if pipeline == "" || metadata == "" {
		cfg, err := loadConfig(rootOpts)
		if err != nil {
			return "", "", err
		}
		if pipeline == "" {
			pipeline = cfg.Model.Path
		}
		if metadata == "" {
			metadata = cfg.Model.MetadataPath
		}
	}
	return pipeline, metadata, nil
}

// NewModelCommand creates the model command.
func NewModelCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect pipeline artifacts",
	}

	var paths modelPaths
	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Load an artifact and print its metadata",
		Long: `Load the pipeline artifact and its metadata exactly as the server would,
then print the model version, feature counts, cross-validation metrics and
whether SHAP explanations can be computed for it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, metadata, err := paths.resolve(rootOpts)
			if err != nil {
				return err
			}
			m, err := model.Load(pipeline, metadata)
			if err != nil {
				return WrapExitError(ExitFailure, "load model", err)
			}

			summary := summarize(m)
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Print(summary, func(w io.Writer) { printSummary(w, summary) })
		},
	}
	paths.register(inspect)

	cmd.AddCommand(inspect)
	return cmd
}

func summarize(m *model.Model) ModelSummary {
	meta := m.Metadata()
	s := ModelSummary{
		ModelVersion:        m.Version(),
		TrainingDate:        meta.TrainingDate,
		Trees:               len(m.Booster().Trees),
		NumericFeatures:     len(meta.Features.Numeric),
		CategoricalFeatures: len(meta.Features.Categorical),
		EncodedColumns:      len(m.EncodedFeatures()),
		PerformanceMetrics:  meta.PerformanceMetrics(),
	}
	if ex, err := explain.NewExplainer(m); err == nil {
		ev := ex.ExpectedValue()
		s.ExplainerAvailable = true
		s.ExpectedValue = &ev
	}
	return s
}

func printSummary(w io.Writer, s ModelSummary) {
	fmt.Fprintf(w, "Model:     %s\n", s.ModelVersion)
	fmt.Fprintf(w, "Trained:   %s\n", s.TrainingDate)
	fmt.Fprintf(w, "Trees:     %d\n", s.Trees)
	fmt.Fprintf(w, "Features:  %d numeric, %d categorical, %d encoded columns\n",
		s.NumericFeatures, s.CategoricalFeatures, s.EncodedColumns)

	names := make([]string, 0, len(s.PerformanceMetrics))
	for k := range s.PerformanceMetrics {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(w, "  %-10s %.3f\n", k, s.PerformanceMetrics[k])
	}

	if s.ExplainerAvailable {
		fmt.Fprintf(w, "Explainer: available (expected value %.4f)\n", *s.ExpectedValue)
	} else {
		fmt.Fprintln(w, "Explainer: unavailable")
	}
}
