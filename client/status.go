package client

import (
	"context"

	"github.com/LINBIT/lcmc/pkg/rest"
)

type StatusService struct {
	client *Client
}

func (s *StatusService) Get(ctx context.Context) (*rest.Status, error) {
	var status *rest.Status
	_, err := s.client.doGET(ctx, "/api/v1/status", nil, &status)
	return status, err
}
