package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/moncoffretelec/coffret/pkg/intake"
	"github.com/moncoffretelec/coffret/pkg/render"
)

func NewRenderCommand() *cobra.Command {
	var (
		input    string
		output   string
		fontPath string
		boldPath string
		logoPath string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a summary PDF from a JSON record without sending it",
		Example: `  coffret render -i record.json -f recap.pdf
  cat record.json | coffret render -f recap.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if output == "" {
				return errors.New("--file is required")
			}

			cfg, err := rt.loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if fontPath == "" {
				fontPath = cfg.Assets.FontPath
			}
			if boldPath == "" {
				boldPath = cfg.Assets.BoldFontPath
			}
			if logoPath == "" {
				logoPath = cfg.Assets.LogoPath
			}

			rec, err := readRecord(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}

			renderer := render.NewRenderer(render.Options{FontPath: fontPath, BoldFontPath: boldPath, LogoPath: logoPath}, rt.sugar())
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			fallbacks, err := renderer.RenderTo(f, rec)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(output)
				return err
			}

			_, _ = fmt.Fprintf(rt.writer, "wrote %s\n", output)
			for _, asset := range fallbacks {
				_, _ = fmt.Fprintf(rt.writer, "warning: %s unavailable, fallback used\n", asset)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSON record to render, - for stdin")
	cmd.Flags().StringVarP(&output, "file", "f", "", "Destination PDF path")
	cmd.Flags().StringVar(&fontPath, "font", "", "TrueType body font (defaults to the configured font)")
	cmd.Flags().StringVar(&boldPath, "bold-font", "", "TrueType font for section labels (defaults to the configured bold font)")
	cmd.Flags().StringVar(&logoPath, "logo", "", "Logo image (defaults to the configured logo)")
	return cmd
}

// readRecord decodes a record from path, or from stdin when path is "-".
// The record is not validated: rendering accepts any record.
func readRecord(stdin io.Reader, path string) (intake.Record, error) {
	var rec intake.Record
	r := stdin
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return rec, fmt.Errorf("opening record: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&rec); err != nil && !errors.Is(err, io.EOF) {
		return rec, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}
