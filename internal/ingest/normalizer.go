// Package ingest turns raw sync input (csv exports, manual order and
// collection lists) into job payloads.
package ingest

import (
	"context"
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/validation"
)

// CatalogCache reports which catalog ids are already stored locally.
type CatalogCache interface {
	Known(ctx context.Context, ids []string) (map[string]bool, error)
}

// Normalizer validates sync input. It has no side effects besides the cache lookup.
type Normalizer struct {
	validate *validatorv10.Validate
	cache    CatalogCache
}

// NewNormalizer returns a Normalizer. v must come from validation.New.
func NewNormalizer(v *validatorv10.Validate, cache CatalogCache) *Normalizer {
	return &Normalizer{validate: v, cache: cache}
}

// NormalizeOrder validates a manual order sync and splits its items by cache presence.
func (n *Normalizer) NormalizeOrder(ctx context.Context, req validation.OrderSyncRequest) (OrderPayload, error) {
	var problems []apperror.Problem
	if err := n.validate.Struct(req); err != nil {
		problems = append(problems, validation.Problems(err, 0)...)
	}
	ids, invalid := ExtractIDs(req.Items)
	problems = append(problems, invalidProblems(invalid)...)
	if len(problems) > 0 {
		return OrderPayload{}, apperror.Validation(problems...)
	}
	if len(ids) == 0 {
		return OrderPayload{}, apperror.ErrEmptyBatch
	}

	toInsert, toScrape, err := n.split(ctx, ids)
	if err != nil {
		return OrderPayload{}, err
	}
	h := req.Header
	return OrderPayload{
		Header: OrderHeader{
			Status:         h.Status,
			Shop:           h.Shop,
			OrderDate:      NormalizeDate(h.OrderDate),
			PaymentDate:    NormalizeDate(h.PaymentDate),
			ShippingDate:   NormalizeDate(h.ShippingDate),
			CollectionDate: NormalizeDate(h.CollectionDate),
			ShippingMethod: h.ShippingMethod,
		},
		ItemsToScrape: toScrape,
		ItemsToInsert: toInsert,
	}, nil
}

// NormalizeCollection validates a manual collection sync.
func (n *Normalizer) NormalizeCollection(ctx context.Context, req validation.CollectionSyncRequest) (CollectionPayload, error) {
	var problems []apperror.Problem
	if err := n.validate.Struct(req); err != nil {
		problems = append(problems, validation.Problems(err, 0)...)
	}
	ids, invalid := ExtractIDs(req.Items)
	problems = append(problems, invalidProblems(invalid)...)
	if len(problems) > 0 {
		return CollectionPayload{}, apperror.Validation(problems...)
	}
	if len(ids) == 0 {
		return CollectionPayload{}, apperror.ErrEmptyBatch
	}

	toInsert, toScrape, err := n.split(ctx, ids)
	if err != nil {
		return CollectionPayload{}, err
	}
	return CollectionPayload{ItemsToScrape: toScrape, ItemsToInsert: toInsert}, nil
}

// split partitions ids into (cached, uncached), keeping input order in both.
func (n *Normalizer) split(ctx context.Context, ids []string) ([]string, []string, error) {
	known, err := n.cache.Known(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog cache lookup: %w", err)
	}
	toInsert, toScrape := []string{}, []string{}
	for _, id := range ids {
		if known[id] {
			toInsert = append(toInsert, id)
		} else {
			toScrape = append(toScrape, id)
		}
	}
	return toInsert, toScrape, nil
}

func invalidProblems(invalid []string) []apperror.Problem {
	return lo.Map(invalid, func(raw string, _ int) apperror.Problem {
		return apperror.Problem{Field: "items", Input: raw, Message: "not a catalog id or item url"}
	})
}
