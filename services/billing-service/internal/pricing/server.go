//go:build protogen

package pricing

import (
	"context"

	billingv1 "github.com/legacy-hub/legacyhub/protos/gen/billing/v1"
	"google.golang.org/grpc"
)

type server struct {
	billingv1.UnimplementedPricingServiceServer
}

func Register(grpcServer *grpc.Server) {
	billingv1.RegisterPricingServiceServer(grpcServer, &server{})
}

func (s *server) QuoteWalkIn(ctx context.Context, req *billingv1.WalkInQuoteRequest) (*billingv1.WalkInQuoteResponse, error) {
	total, err := WalkInTotalCents(WalkInInputs{
		SchemaVersion:       int(req.GetSchemaVersion()),
		NumAdults:           int(req.GetNumAdults()),
		NumChildren:         int(req.GetNumChildren()),
		NumHours:            int(req.GetNumHours()),
		NumParticipants:     int(req.GetNumParticipants()),
		NumNonParticipating: int(req.GetNumNonParticipating()),
	})
	if err != nil {
		return nil, err
	}
	return &billingv1.WalkInQuoteResponse{
		TotalCents: total,
		Display:    FormatAmount(total),
	}, nil
}

func (s *server) TierPrice(ctx context.Context, req *billingv1.TierPriceRequest) (*billingv1.TierPriceResponse, error) {
	cents, err := TierPriceCents(req.GetTier(), req.GetIsPrimary())
	if err != nil {
		return nil, err
	}
	return &billingv1.TierPriceResponse{
		PriceCents: cents,
		Display:    FormatAmount(cents),
	}, nil
}
