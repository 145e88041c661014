// Package export exposes the dataset exporters on the command line.
package export

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jviitala/labelkit/internal/conf"
	"github.com/jviitala/labelkit/internal/export"
	"github.com/jviitala/labelkit/internal/logging"
	"github.com/jviitala/labelkit/internal/store"
)

// Command creates the export subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		format     string
		output     string
		trainSplit float64
		valSplit   float64
		seed       int64
		noShuffle  bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export annotations to a training dataset format",
		Long: `Export the annotations of a data directory to one of:
yolo, coco, pascal-voc, createml, csv.

YOLO exports only images marked done and archives the dataset tree into a
zip; the other formats include every image.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := export.YOLOOptions{
				TrainSplit: trainSplit,
				ValSplit:   valSplit,
				Shuffle:    !noShuffle,
				Seed:       seed,
			}
			return runExport(settings.Server.DataDir, format, output, opts)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yolo",
		"Export format: yolo, coco, pascal-voc, createml or csv")
	cmd.Flags().StringVarP(&output, "output", "o", "",
		"Output path (zip for yolo/pascal-voc, file for the rest)")
	cmd.Flags().Float64Var(&trainSplit, "train-split", settings.Export.TrainSplit,
		"Fraction of done images assigned to the train split (yolo)")
	cmd.Flags().Float64Var(&valSplit, "val-split", settings.Export.ValSplit,
		"Fraction assigned to the val split (yolo)")
	cmd.Flags().Int64Var(&seed, "seed", settings.Export.Seed,
		"Shuffle seed; the same seed always produces the same split (yolo)")
	cmd.Flags().BoolVar(&noShuffle, "no-shuffle", !settings.Export.Shuffle,
		"Keep listing order instead of shuffling before the split (yolo)")
	return cmd
}

func runExport(dataDir, format, output string, opts export.YOLOOptions) error {
	log := logging.ForService("export-cli")

	s, err := store.New(dataDir)
	if err != nil {
		return err
	}
	e := export.New(s)

	if output == "" {
		output = defaultOutput(format)
	}

	switch format {
	case "yolo":
		err = e.ExportYOLOArchive(output, opts)
	case "coco":
		err = e.ExportCOCO(output)
	case "pascal-voc":
		err = e.ExportPascalVOCArchive(output)
	case "createml":
		err = e.ExportCreateML(output)
	case "csv":
		err = e.ExportCSV(output)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return err
	}

	log.Info("export written", "format", format, "output", output)
	fmt.Printf("Exported %s dataset to %s\n", format, output)
	return nil
}

func defaultOutput(format string) string {
	switch format {
	case "yolo":
		return "yolo_dataset.zip"
	case "coco":
		return "coco_annotations.json"
	case "pascal-voc":
		return "pascal_voc_dataset.zip"
	case "createml":
		return "createml_annotations.json"
	case "csv":
		return "annotations.csv"
	default:
		return format + "_export"
	}
}
