package poll

import (
	"context"
	"fmt"

	"github.com/dandantas/kestrel/internal/model"
)

// translate maps a status response to exactly one Message variant.
// The mapping is total: completed and failed are terminal; every other
// status value, known or not, becomes a progress Message.
func (p *Poller) translate(jobID string, resp *model.StatusResponse) (model.Message, bool, error) {
	switch resp.Status {
	case model.JobCompleted:
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.FetchTimeout)
		result, err := p.fetcher.FetchResult(ctx, jobID)
		cancel()
		if err != nil {
			return model.Message{}, false, fmt.Errorf("fetch result for %s: %w", jobID, err)
		}
		return model.NewCompletion(jobID, result), true, nil

	case model.JobFailed:
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "job failed"
		}
		return model.NewError(jobID, msg, resp.Message), true, nil

	default:
		return model.NewProgress(jobID, model.ProgressPayload{
			Percentage:  resp.ProgressPercentage,
			CurrentStep: resp.CurrentStep,
			TotalSteps:  resp.TotalSteps,
			StepName:    resp.Message,
		}), false, nil
	}
}
