package onchain

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"aidledger/internal/observability/metrics"
	"aidledger/internal/queue"
)

// Processor executes queued on-chain jobs against the configured adapter.
type Processor struct {
	adapter Adapter
}

// NewProcessor builds the worker-side dispatcher.
func NewProcessor(adapter Adapter) *Processor {
	return &Processor{adapter: adapter}
}

// Process dispatches a job by type. An explicit failed status from the
// adapter counts as a job failure so the queue retries it.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	start := time.Now()
	var (
		status Status
		err    error
	)
	switch job.Type {
	case JobInitEscrow:
		var params InitEscrowParams
		if err = json.Unmarshal(job.Payload, &params); err == nil {
			var res *InitEscrowResult
			if res, err = p.adapter.InitEscrow(ctx, params); err == nil {
				status = res.Status
			}
		}
	case JobCreateClaim:
		var params CreateClaimParams
		if err = json.Unmarshal(job.Payload, &params); err == nil {
			var res *CreateClaimResult
			if res, err = p.adapter.CreateClaim(ctx, params); err == nil {
				status = res.Status
			}
		}
	case JobDisburse:
		var params DisburseParams
		if err = json.Unmarshal(job.Payload, &params); err == nil {
			var res *DisburseResult
			if res, err = p.adapter.Disburse(ctx, params); err == nil {
				status = res.Status
			}
		}
	default:
		err = fmt.Errorf("unknown onchain job type %q", job.Type)
	}

	outcome := string(StatusSuccess)
	if err == nil && status == StatusFailed {
		err = fmt.Errorf("onchain operation %s reported failed status", job.Type)
	}
	if err != nil {
		outcome = string(StatusFailed)
	}
	metrics.IncrementOnchainOperation(job.Type, p.adapter.Name(), outcome)
	metrics.ObserveOnchainDuration(job.Type, p.adapter.Name(), time.Since(start))
	if err != nil {
		log.Printf("onchain job %s (%s) failed: %v", job.ID, job.Type, err)
	}
	return err
}
