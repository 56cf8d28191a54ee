package ingestion

import (
	"time"

	"github.com/nrms/data-bridge/internal/reporting"
)

const (
	progressEMAAlpha = 0.2
	minRowsForETA    = 10
	maxPrecompletion = 99
)

// Progress tracks one file's row-count estimate against rows actually
// processed, producing the CurrentFileStatus snapshot reporting emits
// every 100 rows.
type Progress struct {
	fileName      string
	totalEstimate int64
	processed     int64
	rowsPerMinute float64
	start         time.Time
	lastUpdate    time.Time
	complete      bool
}

// NewProgress starts tracking fileName against totalEstimate rows.
func NewProgress(fileName string, totalEstimate int64, now time.Time) *Progress {
	return &Progress{fileName: fileName, totalEstimate: totalEstimate, start: now, lastUpdate: now}
}

// Advance records that rowsProcessed more rows completed at now,
// updating the rows/minute exponential moving average.
func (p *Progress) Advance(rowsProcessed int64, now time.Time) {
	elapsed := now.Sub(p.lastUpdate).Minutes()
	if elapsed > 0 {
		instantaneous := float64(rowsProcessed) / elapsed
		if p.processed == 0 {
			p.rowsPerMinute = instantaneous
		} else {
			p.rowsPerMinute = progressEMAAlpha*instantaneous + (1-progressEMAAlpha)*p.rowsPerMinute
		}
	}

	p.processed += rowsProcessed
	p.lastUpdate = now
}

// Complete marks the file fully processed: percentage jumps to 100,
// remaining time to zero, and completion stamps to now.
func (p *Progress) Complete(now time.Time) {
	p.complete = true
	p.lastUpdate = now
}

// Snapshot renders the current CurrentFileStatus. Effective total is
// max(estimate, processed) so percentage never exceeds 99 before
// Complete is called, even if the estimate undercounted.
func (p *Progress) Snapshot(now time.Time) reporting.CurrentFileStatus {
	if p.complete {
		return reporting.CurrentFileStatus{
			FileName:               p.fileName,
			TotalRowsEstimate:      p.totalEstimate,
			RowNumber:              p.processed,
			PercentageCompleted:    100,
			RowsPerMinute:          p.rowsPerMinute,
			EstimatedTimeRemaining: 0,
			EstimatedCompletion:    now,
		}
	}

	effectiveTotal := p.totalEstimate
	if p.processed > effectiveTotal {
		effectiveTotal = p.processed
	}

	percentage := 0
	if effectiveTotal > 0 {
		percentage = int(float64(p.processed) / float64(effectiveTotal) * 100)
	}
	if percentage > maxPrecompletion {
		percentage = maxPrecompletion
	}

	var remaining time.Duration
	var eta time.Time
	if p.processed >= minRowsForETA && p.rowsPerMinute > 0 {
		remainingRows := effectiveTotal - p.processed
		if remainingRows < 0 {
			remainingRows = 0
		}
		remaining = time.Duration(float64(remainingRows)/p.rowsPerMinute*60) * time.Second
		eta = now.Add(remaining)
	}

	return reporting.CurrentFileStatus{
		FileName:               p.fileName,
		TotalRowsEstimate:      p.totalEstimate,
		RowNumber:              p.processed,
		PercentageCompleted:    percentage,
		RowsPerMinute:          p.rowsPerMinute,
		EstimatedTimeRemaining: remaining,
		EstimatedCompletion:    eta,
	}
}
