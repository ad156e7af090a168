package health

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/agrilens/agrilens-go/internal/app"
	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/logger"
)

// Command creates a command that checks the inference service is reachable.
// It exits non-zero when the service is down or reports itself unhealthy.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the inference service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.NewInferenceClient(settings, nil, logger.Global().Module("inference"))
			if err != nil {
				return err
			}
			defer client.Close()

			status, err := client.HealthCheck(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service: %s\n", client.BaseURL())
			for _, key := range slices.Sorted(maps.Keys(status.Fields)) {
				fmt.Fprintf(out, "%s: %s\n", key, status.Fields[key])
			}

			if !status.Healthy() {
				return errors.Newf("inference service reported status %q", status.Status).
					Component("cli").
					Category(errors.CategoryNetwork).
					Build()
			}
			fmt.Fprintln(out, "OK")
			return nil
		},
	}
}
