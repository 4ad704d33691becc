package main

import (
	"context"
	"errors"

	"rategate/middleware/ratelimit/domain"
)

// multiStats repassa o evento para todos os stores (Prometheus e Redis).
type multiStats []domain.StatsStore

func (m multiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
