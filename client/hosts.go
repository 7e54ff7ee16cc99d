package client

import (
	"context"
	"net/url"

	"github.com/LINBIT/lcmc/pkg/rest"
	"github.com/LINBIT/lcmc/pkg/vm"
)

type HostService struct {
	client *Client
}

func hostPath(name string, elems ...string) string {
	p := "/api/v1/hosts/" + url.PathEscape(name)
	for _, e := range elems {
		p += "/" + url.PathEscape(e)
	}
	return p
}

func (s *HostService) Get(ctx context.Context, name string) (*rest.Host, error) {
	var h *rest.Host
	_, err := s.client.doGET(ctx, hostPath(name), nil, &h)
	return h, err
}

func (s *HostService) VMs(ctx context.Context, name string) ([]vm.DomainData, error) {
	var domains []vm.DomainData
	_, err := s.client.doGET(ctx, hostPath(name, "vms"), nil, &domains)
	return domains, err
}

func (s *HostService) VM(ctx context.Context, name, domain string) (*vm.DomainData, error) {
	var d *vm.DomainData
	_, err := s.client.doGET(ctx, hostPath(name, "vms", domain), nil, &d)
	return d, err
}

func (s *HostService) Networks(ctx context.Context, name string) ([]vm.NetworkData, error) {
	var networks []vm.NetworkData
	_, err := s.client.doGET(ctx, hostPath(name, "networks"), nil, &networks)
	return networks, err
}
