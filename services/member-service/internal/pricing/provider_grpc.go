//go:build protogen

package pricing

import (
	"context"
	"log/slog"
	"time"

	"github.com/legacy-hub/legacyhub/libs/grpcx"
	billingv1 "github.com/legacy-hub/legacyhub/protos/gen/billing/v1"
)

type grpcProvider struct {
	client billingv1.PricingServiceClient
}

func NewBillingPricingProvider(logger *slog.Logger, addr string) (Provider, error) {
	if addr == "" {
		return NewStaticProvider(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("grpc pricing provider unavailable, using static prices", "err", err)
		return NewStaticProvider(), nil
	}

	logger.Info("grpc pricing provider enabled", "addr", addr)
	return &grpcProvider{client: billingv1.NewPricingServiceClient(conn)}, nil
}

func (p *grpcProvider) WalkInTotalCents(ctx context.Context, q WalkInQuote) (int64, error) {
	resp, err := p.client.QuoteWalkIn(ctx, &billingv1.WalkInQuoteRequest{
		SchemaVersion:       int32(q.SchemaVersion),
		NumAdults:           int32(q.NumAdults),
		NumChildren:         int32(q.NumChildren),
		NumHours:            int32(q.NumHours),
		NumParticipants:     int32(q.NumParticipants),
		NumNonParticipating: int32(q.NumNonParticipating),
	})
	if err != nil {
		return 0, err
	}
	return resp.GetTotalCents(), nil
}
