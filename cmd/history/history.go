package history

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agrilens/agrilens-go/internal/app"
	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/history"
	"github.com/agrilens/agrilens-go/internal/logger"
	"github.com/agrilens/agrilens-go/internal/web"
)

// Command creates a command that prints recent predictions from the
// configured history backend.
func Command(settings *conf.Settings) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent crop and disease predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.Newf("limit must be positive, got %d", limit).
					Component("cli").
					Category(errors.CategoryValidation).
					Build()
			}

			log := logger.Global().Module("datastore")
			backend, err := app.OpenHistory(cmd.Context(), settings, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := backend.Close(); err != nil {
					log.Warn("failed to close history backend", logger.Error(err))
				}
			}()

			loader := history.NewLoader(backend,
				history.WithLimit(limit),
				history.WithLogger(logger.Global().Module("history")))
			view := loader.Load(cmd.Context())

			if err := Print(cmd.OutOrStdout(), view); err != nil {
				return err
			}
			if view.Failed() {
				return errors.Join(view.CropErr, view.DiseaseErr)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", settings.History.Limit, "Records to show per collection")

	return cmd
}

// Print writes both collections as aligned tables, newest first.
func Print(w io.Writer, view *history.View) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Crop predictions (%d)\n", len(view.Crops))
	if view.CropErr != nil {
		fmt.Fprintln(tw, "  could not be loaded")
	} else if len(view.Crops) > 0 {
		fmt.Fprintln(tw, "DATE\tCROP\tCONFIDENCE\tN\tP\tK\tTEMP\tHUMIDITY\tPH\tRAINFALL")
		for i := range view.Crops {
			r := &view.Crops[i]
			fmt.Fprintf(tw, "%s\t%s\t%g%%\t%g\t%g\t%g\t%g\t%g\t%g\t%g\n",
				formatDate(r.CreatedAt), r.RecommendedCrop, r.Confidence,
				r.Nitrogen, r.Phosphorus, r.Potassium,
				r.Temperature, r.Humidity, r.Ph, r.Rainfall)
		}
	}

	fmt.Fprintf(tw, "\nDisease predictions (%d)\n", len(view.Diseases))
	if view.DiseaseErr != nil {
		fmt.Fprintln(tw, "  could not be loaded")
	} else if len(view.Diseases) > 0 {
		fmt.Fprintln(tw, "DATE\tDISEASE\tCONFIDENCE")
		for i := range view.Diseases {
			r := &view.Diseases[i]
			fmt.Fprintf(tw, "%s\t%s\t%g%%\n", formatDate(r.CreatedAt), r.DetectedDisease, r.Confidence)
		}
	}

	return tw.Flush()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(web.DateLayout)
}
