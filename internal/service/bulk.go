package service

import (
	"context"
	"fmt"
	"time"

	"github.com/notifyhq/notification-engine/internal/models"
)

// SendBulk splits the requests into fixed-size chunks, dispatches items
// within a chunk concurrently, and waits the configured delay between chunks
// to stay inside provider rate limits. One item's failure or panic never
// aborts the rest. Not-yet-started chunks are skipped once the context is
// cancelled; their items are recorded as failed so the result list always
// matches the request list.
func (o *Orchestrator) SendBulk(ctx context.Context, reqs []models.NotificationRequest) ([]models.BulkItemResult, models.BulkSummary, error) {
	results := make([]models.BulkItemResult, len(reqs))

	for start := 0; start < len(reqs); start += o.batchSize {
		end := start + o.batchSize
		if end > len(reqs) {
			end = len(reqs)
		}

		if ctx.Err() != nil {
			for i := start; i < len(reqs); i++ {
				reqCopy := reqs[i]
				results[i] = models.BulkItemResult{
					Index:   i,
					Status:  models.StatusFailed,
					Error:   "batch cancelled before dispatch",
					Request: &reqCopy,
				}
			}
			break
		}

		done := make(chan struct{}, end-start)
		for i := start; i < end; i++ {
			go func(i int) {
				results[i] = o.sendBulkItem(ctx, i, reqs[i])
				done <- struct{}{}
			}(i)
		}
		for i := start; i < end; i++ {
			<-done
		}

		if end < len(reqs) && o.chunkDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(o.chunkDelay):
			}
		}
	}

	return results, summarize(results), nil
}

func (o *Orchestrator) sendBulkItem(ctx context.Context, index int, req models.NotificationRequest) (item models.BulkItemResult) {
	defer func() {
		if rec := recover(); rec != nil {
			reqCopy := req
			item = models.BulkItemResult{
				Index:   index,
				Status:  models.StatusFailed,
				Error:   fmt.Sprintf("panic during dispatch: %v", rec),
				Request: &reqCopy,
			}
			o.logger.Error().
				Int("index", index).
				Interface("panic", rec).
				Msg("recovered panic in bulk item")
		}
	}()

	notif, err := o.Send(ctx, req)
	if err != nil {
		reqCopy := req
		return models.BulkItemResult{
			Index:   index,
			Status:  models.StatusFailed,
			Error:   err.Error(),
			Request: &reqCopy,
		}
	}

	return models.BulkItemResult{
		Index:          index,
		NotificationID: notif.ID,
		Status:         notif.Status,
		Success:        notif.Status != models.StatusFailed,
	}
}

func summarize(results []models.BulkItemResult) models.BulkSummary {
	summary := models.BulkSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case models.StatusSent:
			summary.Sent++
		case models.StatusPartial:
			summary.Partial++
		case models.StatusScheduled:
			summary.Scheduled++
		default:
			summary.Failed++
		}
	}
	return summary
}
