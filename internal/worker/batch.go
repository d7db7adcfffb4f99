package worker

import (
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

const maxErrorDetails = 10

// ItemFunc processes one item; index is its position in the full input.
type ItemFunc func(item interface{}, index int) (interface{}, error)

// ItemError describes one failed item.
type ItemError struct {
	Index     int         `json:"index"`
	Item      interface{} `json:"item"`
	Error     string      `json:"error"`
	Traceback string      `json:"traceback"`
}

// BatchResult summarizes a BatchProcess run.
type BatchResult struct {
	Success      bool          `json:"success"`
	Processed    int           `json:"processed"`
	Errors       int           `json:"errors"`
	Time         float64       `json:"time"`
	Results      []interface{} `json:"results"`
	ErrorDetails []ItemError   `json:"error_details"`
}

// BatchProcess applies fn to every item in chunks of batchSize. A failing
// item is recorded and does not stop the batch. Progress is reported after
// each chunk, capped at 99 until the final summary is written at 100.
func (e *Execution) BatchProcess(items []interface{}, fn ItemFunc, batchSize int) BatchResult {
	total := len(items)
	if total == 0 {
		e.log.Warn("batch received no items")
		return BatchResult{Success: true, Results: []interface{}{}, ErrorDetails: []ItemError{}}
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	start := e.runner.now()
	results := make([]interface{}, 0, total)
	var failures []ItemError
	totalBatches := (total + batchSize - 1) / batchSize

	e.UpdateProgress(0, map[string]interface{}{"total_items": total, "batch_size": batchSize})

	for offset := 0; offset < total; offset += batchSize {
		end := offset + batchSize
		if end > total {
			end = total
		}
		for i := offset; i < end; i++ {
			out, err := runItem(fn, items[i], i)
			if err != nil {
				failures = append(failures, ItemError{
					Index:     i,
					Item:      items[i],
					Error:     err.Error(),
					Traceback: traceback(err),
				})
				e.log.Error("batch item failed", zap.Int("index", i), zap.Error(err))
				continue
			}
			results = append(results, out)
		}

		progress := end * 100 / total
		if progress > 99 {
			progress = 99
		}
		e.UpdateProgress(progress, map[string]interface{}{
			"processed":     end,
			"total":         total,
			"errors":        len(failures),
			"current_batch": offset/batchSize + 1,
			"total_batches": totalBatches,
		})
	}

	details := failures
	if len(details) > maxErrorDetails {
		details = details[:maxErrorDetails]
	}
	if details == nil {
		details = []ItemError{}
	}
	result := BatchResult{
		Success:      len(failures) == 0,
		Processed:    total,
		Errors:       len(failures),
		Time:         e.runner.now().Sub(start).Seconds(),
		Results:      results,
		ErrorDetails: details,
	}

	e.updateProgress(100, result.asMap(), true)
	return result
}

// runItem shields the batch from a panicking item.
func runItem(fn ItemFunc, item interface{}, index int) (out interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p, stack: debug.Stack()}
		}
	}()
	return fn(item, index)
}

func (r BatchResult) asMap() map[string]interface{} {
	return map[string]interface{}{
		"success":       r.Success,
		"processed":     r.Processed,
		"errors":        r.Errors,
		"time":          r.Time,
		"results":       r.Results,
		"error_details": r.ErrorDetails,
	}
}

func (r BatchResult) String() string {
	return fmt.Sprintf("processed=%d errors=%d in %s", r.Processed, r.Errors, time.Duration(r.Time*float64(time.Second)))
}
