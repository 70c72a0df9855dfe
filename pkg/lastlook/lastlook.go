// Package lastlook runs maker last look confirmation before a fill is
// submitted on chain. Last look fails closed: any transport error, invalid
// payload, or mismatch between what the maker was asked and what it echoed
// back counts as a decline.
package lastlook

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/rfqlabs/rfq-relayer/internal/metrics"
	"github.com/rfqlabs/rfq-relayer/pkg/db"
	"github.com/rfqlabs/rfq-relayer/pkg/maker"
	"github.com/rfqlabs/rfq-relayer/pkg/rfq"
)

// Confirmer is the subset of the maker client used for last look.
type Confirmer interface {
	ConfirmLastLook(ctx context.Context, uri string, req *maker.LastLookRequest) (*maker.LastLookResponse, error)
}

// Coordinator asks makers to confirm fills.
type Coordinator struct {
	client Confirmer
	logger *zap.Logger
}

func NewCoordinator(client Confirmer, logger *zap.Logger) *Coordinator {
	return &Coordinator{client: client, logger: logger}
}

// Confirm runs last look for the job. On decline the job is moved to the
// declined status and its calldata is cleared so the fill can never be
// submitted; the caller persists the job either way.
func (c *Coordinator) Confirm(ctx context.Context, job *db.Job) bool {
	accepted := c.confirm(ctx, job)
	job.LastLookResult = &accepted
	if accepted {
		metrics.LastLookOutcomes.WithLabelValues("accepted").Inc()
		return true
	}

	metrics.LastLookOutcomes.WithLabelValues("declined").Inc()
	job.Status = db.JobStatusFailedLastLookDeclined
	job.Calldata = nil
	return false
}

func (c *Coordinator) confirm(ctx context.Context, job *db.Job) bool {
	if job.Order == nil || job.Fee == nil {
		return false
	}

	fillAmount, err := takerTokenFillAmount(job)
	if err != nil {
		c.logger.Warn("Cannot derive fill amount for last look",
			zap.String("order_hash", job.OrderHash),
			zap.Error(err))
		return false
	}

	req := &maker.LastLookRequest{
		Order:                *job.Order,
		OrderHash:            job.OrderHash,
		Fee:                  *job.Fee,
		TakerTokenFillAmount: fillAmount,
	}

	resp, err := c.client.ConfirmLastLook(ctx, job.MakerURI, req)
	if err != nil {
		c.logger.Warn("Last look request failed, treating as decline",
			zap.String("order_hash", job.OrderHash),
			zap.String("maker_uri", job.MakerURI),
			zap.Error(err))
		return false
	}

	if resp.ProceedWithFill == nil || !*resp.ProceedWithFill {
		c.logger.Info("Maker declined last look",
			zap.String("order_hash", job.OrderHash),
			zap.String("maker_uri", job.MakerURI))
		return false
	}

	// The maker must echo back exactly what it was asked to confirm. A
	// mismatch means it accepted different terms, which is a decline.
	if !strings.EqualFold(resp.OrderHash, job.OrderHash) {
		c.logger.Warn("Last look order hash mismatch",
			zap.String("order_hash", job.OrderHash),
			zap.String("response_hash", resp.OrderHash))
		return false
	}
	if resp.Fee == nil || !resp.Fee.Equal(job.Fee) {
		c.logger.Warn("Last look fee mismatch",
			zap.String("order_hash", job.OrderHash))
		return false
	}
	if resp.TakerTokenFillAmount != fillAmount {
		c.logger.Warn("Last look fill amount mismatch",
			zap.String("order_hash", job.OrderHash),
			zap.String("expected", fillAmount),
			zap.String("got", resp.TakerTokenFillAmount))
		return false
	}

	return true
}

func takerTokenFillAmount(job *db.Job) (string, error) {
	order, err := job.Order.ToOrder()
	if err != nil {
		return "", err
	}
	if order.Kind == rfq.KindOtc {
		return order.Otc.TakerAmount.String(), nil
	}
	return order.V4Rfq.TakerAmount.String(), nil
}
