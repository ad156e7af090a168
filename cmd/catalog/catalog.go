package catalog

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agrilens/agrilens-go/internal/app"
	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/inference"
	"github.com/agrilens/agrilens-go/internal/logger"
)

// Command creates the catalog command group listing the labels the
// inference service can predict.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the crops or diseases known to the inference service",
	}
	cmd.AddCommand(
		listCommand(settings, "crops", "List crop labels", (*inference.Client).ListCrops),
		listCommand(settings, "diseases", "List disease labels", (*inference.Client).ListDiseases),
	)
	return cmd
}

func listCommand(settings *conf.Settings, use, short string, list func(*inference.Client, context.Context) ([]string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.NewInferenceClient(settings, nil, logger.Global().Module("inference"))
			if err != nil {
				return err
			}
			defer client.Close()

			labels, err := list(client, cmd.Context())
			if err != nil {
				return err
			}
			for _, label := range labels {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), label); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
