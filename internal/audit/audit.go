// Package audit records how each pricing request was decided.
package audit

import (
	"context"
	"errors"

	"gtipricing/backend/internal/domain"
	"gtipricing/backend/internal/store"
)

type Sink interface {
	Record(ctx context.Context, entry domain.PricingAudit) error
}

// StoreSink writes audits through the repository.
type StoreSink struct {
	store store.AuditStore
}

func NewStoreSink(s store.AuditStore) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) Record(ctx context.Context, entry domain.PricingAudit) error {
	return s.store.CreatePricingAudit(ctx, entry)
}

// Multi fans an audit out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, entry domain.PricingAudit) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
