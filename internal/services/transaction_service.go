package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"bilancio/internal/core"
	"bilancio/internal/sheets"
)

// RefreshPublisher announces that a kind's forecast is stale.
type RefreshPublisher interface {
	PublishForecastRefresh(ctx context.Context, kind core.TransactionKind, months int) error
}

// TransactionService saves transactions and notifies the forecast worker.
type TransactionService struct {
	writer    sheets.TransactionWriter
	publisher RefreshPublisher
	months    int
}

// NewTransactionService wires a writer and an optional publisher. months is
// the lookback the worker should refresh with; zero lets the worker decide.
func NewTransactionService(writer sheets.TransactionWriter, publisher RefreshPublisher, months int) *TransactionService {
	return &TransactionService{
		writer:    writer,
		publisher: publisher,
		months:    months,
	}
}

// CreateTransaction validates and saves tx, then publishes a refresh
// request. Publishing is best effort: the transaction is already stored.
func (s *TransactionService) CreateTransaction(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}

	ref, err := s.writer.Append(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("save transaction: %w", err)
	}

	if err := s.publishRefresh(ctx, tx.Kind); err != nil {
		slog.ErrorContext(ctx, "Failed to publish forecast refresh",
			"ref", ref, "kind", string(tx.Kind), "error", err)
	}

	return ref, nil
}

func (s *TransactionService) publishRefresh(ctx context.Context, kind core.TransactionKind) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping forecast refresh")
		return nil
	}
	return s.publisher.PublishForecastRefresh(ctx, kind, s.months)
}

// Close closes the writer and the publisher when they hold resources.
func (s *TransactionService) Close() error {
	var errs []error

	if c, ok := s.writer.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close transaction service: %v", errs)
	}

	return nil
}
