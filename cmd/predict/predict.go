package predict

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agrilens/agrilens-go/internal/app"
	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/flow"
	"github.com/agrilens/agrilens-go/internal/inference"
	"github.com/agrilens/agrilens-go/internal/logger"
)

// Command creates the predict command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run a single prediction against the inference service",
	}
	cmd.AddCommand(cropCommand(settings), diseaseCommand(settings))
	return cmd
}

func cropCommand(settings *conf.Settings) *cobra.Command {
	values := make(map[flow.Field]*string, len(flow.CropFields))

	cmd := &cobra.Command{
		Use:   "crop",
		Short: "Recommend a crop for soil and climate parameters",
		Example: "  agrilens predict crop --n 90 --p 42 --k 43 --temperature 20.87 " +
			"--humidity 82 --ph 6.5 --rainfall 202.93",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := make(map[flow.Field]string, len(values))
			for field, v := range values {
				raw[field] = *v
			}
			query, verr := flow.ParseCropQuery(raw)
			if verr != nil {
				return verr
			}

			client, err := newClient(settings)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.RecommendCrop(cmd.Context(), query)
			if err != nil {
				return err
			}
			return printCrop(cmd.OutOrStdout(), result)
		},
	}

	for _, spec := range flow.CropFields {
		values[spec.Field] = cmd.Flags().String(FlagName(spec.Field), "", flagUsage(spec))
	}

	return cmd
}

func diseaseCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "disease <image>",
		Short: "Detect plant disease in a leaf image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := ReadImage(args[0])
			if err != nil {
				return err
			}
			if verr := flow.ValidateImage(image); verr != nil {
				return verr
			}

			client, err := newClient(settings)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.DetectDisease(cmd.Context(), image)
			if err != nil {
				return err
			}
			return printDisease(cmd.OutOrStdout(), result)
		},
	}
}

// FlagName is the command line flag for a crop field: "N" becomes "n".
func FlagName(field flow.Field) string {
	return strings.ToLower(string(field))
}

func flagUsage(spec flow.FieldSpec) string {
	usage := fmt.Sprintf("%s, %g to %g", spec.Label, spec.Min, spec.Max)
	if spec.Unit != "" {
		usage += " " + spec.Unit
	}
	return usage
}

// ReadImage loads an image file from disk. The content type comes from the
// file extension, falling back to sniffing the bytes.
func ReadImage(path string) (inference.ImageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return inference.ImageFile{}, errors.New(err).
			Component("cli").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return inference.ImageFile{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

func newClient(settings *conf.Settings) (*inference.Client, error) {
	return app.NewInferenceClient(settings, nil, logger.Global().Module("inference"))
}

func printCrop(w io.Writer, result *inference.CropResult) error {
	_, err := fmt.Fprintf(w, "Recommended crop: %s\nConfidence: %g%%\n", result.RecommendedCrop, result.Confidence)
	return err
}

func printDisease(w io.Writer, result *inference.DiseaseResult) error {
	if _, err := fmt.Fprintf(w, "Detected disease: %s\nConfidence: %g%%\n", result.Disease, result.Confidence); err != nil {
		return err
	}
	if len(result.TopPredictions) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Top predictions:"); err != nil {
		return err
	}
	for i, p := range result.TopPredictions {
		if _, err := fmt.Fprintf(w, "  %d. %s (%g%%)\n", i+1, p.Disease, p.Confidence); err != nil {
			return err
		}
	}
	return nil
}
