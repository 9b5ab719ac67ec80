package eodobs

import (
	"context"
	"time"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/trace"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
	ctx        context.Context
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

// Wrap traces and logs every summary. ctx carries the parent span.
func Wrap(ctx context.Context, summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{
		summarizer: summarizer,
		ctx:        ctx,
	}
}

func (oes *observableEodSummarizer) SummarizeDay(t time.Time) (string, error) {
	ctx, span := trace.StartSpan(oes.ctx, "eod.SummarizeDay")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting EOD summary generation",
		"date", t.Format("2006-01-02"),
	)

	csvPath, err := oes.summarizer.SummarizeDay(t)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "EOD summary generation failed", err,
			"date", t.Format("2006-01-02"),
		)
		return "", err
	}

	if csvPath == "" {
		logger.InfoSkip(ctx, 1, "No trades found for EOD summary",
			"date", t.Format("2006-01-02"),
		)
		return "", nil
	}

	logger.InfoSkip(ctx, 1, "EOD summary generated successfully",
		"date", t.Format("2006-01-02"),
		"csv_path", csvPath,
	)
	return csvPath, nil
}

func (oes *observableEodSummarizer) SummarizeToday() (string, error) {
	ctx, span := trace.StartSpan(oes.ctx, "eod.SummarizeToday")
	defer span.End()

	csvPath, err := oes.summarizer.SummarizeToday()
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Today's EOD summary generation failed", err)
		return "", err
	}
	if csvPath == "" {
		logger.InfoSkip(ctx, 1, "No trades found for today's EOD summary")
		return "", nil
	}

	logger.InfoSkip(ctx, 1, "Today's EOD summary generated successfully",
		"csv_path", csvPath,
	)
	return csvPath, nil
}

func (oes *observableEodSummarizer) ShouldRunNow() (bool, string) {
	ctx, span := trace.StartSpan(oes.ctx, "eod.ShouldRunNow")
	defer span.End()

	shouldRun, csvPath := oes.summarizer.ShouldRunNow()

	logger.DebugSkip(ctx, 1, "EOD check completed",
		"should_run", shouldRun,
		"csv_path", csvPath,
	)
	return shouldRun, csvPath
}
