package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/attrition/internal/prediction"
)

// NewPredictCommand creates the predict command.
func NewPredictCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		paths   modelPaths
		explain bool
	)

	cmd := &cobra.Command{
		Use:   "predict <file|->",
		Short: "Score employee records offline",
		Long: `Score one employee record, or a {"employees": [...]} batch, read from a
file or stdin, with the same validation and pipeline the server uses.
Nothing is written to the audit log.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, metadata, err := paths.resolve(rootOpts)
			if err != nil {
				return err
			}
			body, err := readInput(cmd, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "read input", err)
			}

			svc := prediction.New()
			if err := svc.Load(pipeline, metadata); err != nil {
				return WrapExitError(ExitFailure, "load model", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			meta := prediction.RequestMeta{Endpoint: "attritionctl predict"}

			var envelope struct {
				Employees []json.RawMessage `json:"employees"`
			}
			if json.Unmarshal(body, &envelope) == nil && envelope.Employees != nil {
				res, err := svc.PredictBatch(cmd.Context(), envelope.Employees, meta)
				if err != nil {
					return WrapExitError(ExitFailure, "predict", err)
				}
				return out.Print(res, func(w io.Writer) { printBatch(w, res) })
			}

			if explain {
				res, err := svc.Explain(cmd.Context(), body, meta)
				if err != nil {
					return WrapExitError(ExitFailure, "explain", err)
				}
				return out.Print(res, func(w io.Writer) {
					for _, f := range res.TopFeatures {
						fmt.Fprintf(w, "%-45s %+.4f  %s\n", f.Feature, f.Value, f.Impact)
					}
				})
			}

			res, err := svc.Predict(cmd.Context(), body, meta)
			if err != nil {
				return WrapExitError(ExitFailure, "predict", err)
			}
			return out.Print(res, func(w io.Writer) {
				p := res.Prediction
				fmt.Fprintf(w, "risk=%s probability_leave=%.4f will_leave=%t model=%s\n",
					p.RiskLevel, p.ProbabilityLeave, p.WillLeave, res.Metadata.ModelVersion)
			})
		},
	}
	paths.register(cmd)
	cmd.Flags().BoolVar(&explain, "explain", false, "print the top SHAP attributions instead of the prediction")

	return cmd
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

func printBatch(w io.Writer, res *prediction.BatchResult) {
	for _, item := range res.Predictions {
		id := "-"
		if item.EmployeeID != nil {
			id = *item.EmployeeID
		}
		if item.Error != nil {
			fmt.Fprintf(w, "%4d %-12s error=%s %s\n", item.Index, id, item.Error.Code, item.Error.Message)
			continue
		}
		fmt.Fprintf(w, "%4d %-12s risk=%s probability_leave=%.4f\n",
			item.Index, id, item.Prediction.RiskLevel, item.Prediction.ProbabilityLeave)
	}
	fmt.Fprintf(w, "%d scored, %d failed\n", res.Metadata.Successful, res.Metadata.Failed)
}
