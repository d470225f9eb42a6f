package train

import (
	"log/slog"
	"math"
	"time"

	"github.com/happyhackingspace/chartag/eval"
)

// Report describes one split in one epoch.
type Report struct {
	Split   string
	Epoch   int
	Cost    float64
	Elapsed time.Duration
	Result  eval.Result
	Best    Score
}

// Reporter receives a Report after every scored split.
type Reporter interface {
	Report(r Report)
}

// LogReporter writes reports through slog: scores at info, the CoNLL report
// and confusion matrices at debug.
type LogReporter struct{}

// Report implements Reporter.
func (LogReporter) Report(r Report) {
	slog.Info("Epoch",
		"dset", r.Split,
		"epoch", r.Epoch,
		"mcost", round4(r.Cost),
		"mtime", round4(r.Elapsed.Seconds()),
		"cerr", round4(r.Result.CER),
		"werr", round4(r.Result.WER),
		"wacc", round4(r.Result.WordAccuracy),
		"pre", round4(r.Result.Precision),
		"recall", round4(r.Result.Recall),
		"f1", round4(r.Result.F1),
		"best", round4(r.Best.F1),
		"best_epoch", r.Best.Epoch,
	)
	slog.Debug("CoNLL report\n" + r.Result.Conll)
	slog.Debug("Character confusion\n" + r.Result.CharConfusion)
	slog.Debug("Word confusion\n" + r.Result.WordConfusion)
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
