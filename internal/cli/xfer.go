package cli

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/chartag"
)

func (c *CLI) newXferCommand() *cobra.Command {
	cfg := chartag.DefaultConfig()
	cfg.Tagging = chartag.TaggingBIO
	cfg.CapTrain = 500

	cmd := &cobra.Command{
		Use:   "xfer <checkpoint> <lang>",
		Short: "Continue training a saved model on another corpus",
		Long: `Builds a model with the network, optimizer and training options of the
checkpoint for the corpus of <lang>, copies every saved parameter whose size
still fits and trains it.`,
		Args: cobra.ExactArgs(2),
		Example: `  chartag xfer models/run.json tur --data-folder data
  chartag xfer models/run.json fin --tagging io --save --model-dir models/fin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Lang = args[1]
			slog.Info("Transferring", "checkpoint", args[0], "lang", cfg.Lang)
			start := time.Now()

			x, copied, err := chartag.Transfer(args[0], cfg)
			if err != nil {
				return err
			}
			slog.Info("Loaded parameters", "copied", copied)
			f1, err := x.Run()
			if err != nil {
				return err
			}
			slog.Info("Training completed", "best_dev_f1", f1, "duration", time.Since(start))
			if path := x.Checkpoint(); path != "" {
				slog.Info("Model saved", "path", path)
			}
			return nil
		},
	}

	addDataFlags(cmd.Flags(), &cfg)
	return cmd
}
