//go:build !protogen

package main

import (
	"context"
	"log/slog"
)

func startGrpcServer(_ context.Context, _ *slog.Logger) error {
	return nil
}
