package cli

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/chartag"
	"github.com/happyhackingspace/chartag/eval"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var config chartag.EvalConfig

	cmd := &cobra.Command{
		Use:   "evaluate <checkpoint>",
		Short: "Score a saved checkpoint on the dev and test splits",
		Args:  cobra.ExactArgs(1),
		Example: `  chartag evaluate models/activation:bi-lstm,...,tagging:io.json
  chartag evaluate model.json --data-folder data --decoder viterbi`,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Evaluating", "checkpoint", args[0])
			start := time.Now()
			result, err := chartag.Evaluate(args[0], &config)
			if err != nil {
				return err
			}
			slog.Debug("Evaluation completed", "duration", time.Since(start))

			fmt.Printf("Checkpoint %s (epoch %d, dev F1 %.2f)\n", result.Name, result.Epoch, result.F1)
			for _, s := range result.Splits {
				printSplit(s.Split, s.Result)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&config.DataFolder, "data-folder", "", "Override the corpus folder stored in the checkpoint")
	cmd.Flags().StringVar(&config.Decoder, "decoder", "", "Override the decoder: max or viterbi")
	return cmd
}

func printSplit(name string, r eval.Result) {
	fmt.Printf("\n== %s ==\n", name)
	fmt.Printf("Character error rate: %.2f%%\n", r.CER*100)
	fmt.Printf("Word error rate: %.2f%%  Word accuracy: %.2f%%\n", r.WER*100, r.WordAccuracy)
	fmt.Printf("Precision: %.2f%%  Recall: %.2f%%  F1: %.2f\n", r.Precision, r.Recall, r.F1)
	fmt.Printf("\n%s", r.Conll)

	precision, recall, f1 := r.Words.Metrics()
	printConfusionMatrix(r.Words.Counts(), r.Words.Classes())
	printClassReport(r.Words.Counts(), r.Words.Classes(), precision, recall, f1)
}

func printClassReport(confusion map[string]map[string]int, classes []string, precision, recall, f1 map[string]float64) {
	fmt.Printf("\nPer-tag metrics:\n")
	fmt.Printf("%8s  %6s  %6s  %6s  %7s\n", "tag", "prec", "recall", "f1", "support")
	for _, cls := range classes {
		support := 0
		for _, v := range confusion[cls] {
			support += v
		}
		fmt.Printf("%8s  %5.1f%%  %5.1f%%  %5.1f%%  %7d\n",
			cls, precision[cls]*100, recall[cls]*100, f1[cls]*100, support)
	}
}

func printConfusionMatrix(confusion map[string]map[string]int, classes []string) {
	if len(confusion) == 0 {
		return
	}

	sort.SliceStable(classes, func(i, j int) bool {
		ti, tj := 0, 0
		for _, v := range confusion[classes[i]] {
			ti += v
		}
		for _, v := range confusion[classes[j]] {
			tj += v
		}
		return ti > tj
	})

	fmt.Printf("\nConfusion matrix (rows=true, cols=predicted):\n")
	fmt.Printf("%8s", "")
	for _, c := range classes {
		fmt.Printf(" %7s", c)
	}
	fmt.Printf("  total  acc%%\n")

	for _, trueClass := range classes {
		fmt.Printf("%8s", trueClass)
		total := 0
		correct := 0
		for _, predClass := range classes {
			count := confusion[trueClass][predClass]
			total += count
			if trueClass == predClass {
				correct = count
			}
			if count == 0 {
				fmt.Printf(" %7s", ".")
			} else {
				fmt.Printf(" %7d", count)
			}
		}
		acc := 0.0
		if total > 0 {
			acc = float64(correct) / float64(total) * 100
		}
		fmt.Printf("  %5d %5.1f\n", total, acc)
	}
}
