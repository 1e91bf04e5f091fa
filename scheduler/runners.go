package scheduler

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/banasa44/buiss-scrapper-sub000/discovery"
	"github.com/banasa44/buiss-scrapper-sub000/offermgr"
	"github.com/banasa44/buiss-scrapper-sub000/provider"
	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

// BoardLister yields the discovered boards for an ATS provider.
type BoardLister interface {
	Boards(ctx context.Context, providerTag string) ([]discovery.Board, error)
}

// MarketplaceRunner returns a runner executing one marketplace search
// through the pipeline. The reported high-water mark is the newest
// update or publish timestamp seen in the batch.
func MarketplaceRunner(
	providerTag string,
	client provider.Marketplace,
	pipeline *offermgr.Pipeline,
	params provider.SearchParams,
) RunnerFunc {
	return func(ctx context.Context, queryKey string) (*string, error) {
		batch, err := client.SearchOffers(ctx, params)
		if err != nil {
			return nil, err
		}

		items := make([]offermgr.BatchItem, 0, len(batch.Offers))
		var lastProcessed *string
		for _, offer := range batch.Offers {
			items = append(items, offermgr.BatchItem{Payload: offer})

			ts := offer.UpdatedAt
			if ts == nil {
				ts = offer.PublishedAt
			}
			if ts == nil {
				continue
			}
			formatted := storage.FormatTime(*ts)
			if lastProcessed == nil || formatted > *lastProcessed {
				lastProcessed = &formatted
			}
		}

		if _, err := pipeline.Run(ctx, offermgr.BatchRequest{
			Provider:     providerTag,
			QueryKey:     queryKey,
			Items:        items,
			PagesFetched: batch.Meta.PagesRead,
		}); err != nil {
			return nil, err
		}
		return lastProcessed, nil
	}
}

// ATSRunner returns a runner that lists and hydrates every discovered
// board of the provider, persisting all rows as one company-bound batch.
// A board whose tenant vanished since discovery is skipped, not fatal.
func ATSRunner(
	providerTag string,
	client provider.ATS,
	boards BoardLister,
	pipeline *offermgr.Pipeline,
) RunnerFunc {
	return func(ctx context.Context, queryKey string) (*string, error) {
		list, err := boards.Boards(ctx, providerTag)
		if err != nil {
			return nil, err
		}

		var items []offermgr.BatchItem
		boardsRead := 0
		for _, board := range list {
			offers, err := client.ListOffersForTenant(ctx, board.TenantKey)
			if err != nil {
				if errors.Cause(err) == provider.ErrTenantNotFound {
					log.WithFields(log.Fields{
						"provider": providerTag,
						"tenant":   board.TenantKey,
					}).Warn("Discovered board vanished, skipping")
					continue
				}
				return nil, err
			}
			boardsRead++

			offers, err = client.HydrateOfferDetails(ctx, board.TenantKey, offers)
			if err != nil {
				return nil, err
			}

			companyID := board.CompanyID
			for _, offer := range offers {
				items = append(items, offermgr.BatchItem{Payload: offer, CompanyID: &companyID})
			}
		}

		if _, err := pipeline.Run(ctx, offermgr.BatchRequest{
			Provider:     providerTag,
			QueryKey:     queryKey,
			Items:        items,
			PagesFetched: boardsRead,
		}); err != nil {
			return nil, err
		}
		return nil, nil
	}
}
