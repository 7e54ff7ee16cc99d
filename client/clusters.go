package client

import (
	"context"
	"net/url"

	"github.com/LINBIT/lcmc/pkg/crmcontrol"
	"github.com/LINBIT/lcmc/pkg/rest"
)

func clusterPath(name string, elems ...string) string {
	p := "/api/v1/clusters/" + url.PathEscape(name)
	for _, e := range elems {
		p += "/" + url.PathEscape(e)
	}
	return p
}

type ClusterService struct {
	client *Client
}

func (s *ClusterService) GetAll(ctx context.Context) ([]rest.Cluster, error) {
	var clusters []rest.Cluster
	_, err := s.client.doGET(ctx, "/api/v1/clusters", nil, &clusters)
	return clusters, err
}

func (s *ClusterService) Get(ctx context.Context, name string) (*rest.Cluster, error) {
	var c *rest.Cluster
	_, err := s.client.doGET(ctx, clusterPath(name), nil, &c)
	return c, err
}

func (s *ClusterService) Nodes(ctx context.Context, name string) ([]rest.Node, error) {
	var nodes []rest.Node
	_, err := s.client.doGET(ctx, clusterPath(name, "nodes"), nil, &nodes)
	return nodes, err
}

func (s *ClusterService) Constraints(ctx context.Context, name string) (*rest.Constraints, error) {
	var cons *rest.Constraints
	_, err := s.client.doGET(ctx, clusterPath(name, "constraints"), nil, &cons)
	return cons, err
}

// Config returns the cluster properties and the resource and operation
// defaults.
func (s *ClusterService) Config(ctx context.Context, name string) (*rest.ClusterConfig, error) {
	var cfg *rest.ClusterConfig
	_, err := s.client.doGET(ctx, clusterPath(name, "config"), nil, &cfg)
	return cfg, err
}

type ResourceService struct {
	client *Client
}

// GetAll returns the resources of a cluster. With test set, placements come
// from the last policy engine dry-run.
func (s *ResourceService) GetAll(ctx context.Context, cluster string, test bool) ([]rest.Resource, error) {
	var query url.Values
	if test {
		query = url.Values{"mode": {crmcontrol.Test.String()}}
	}
	var resources []rest.Resource
	_, err := s.client.doGET(ctx, clusterPath(cluster, "resources"), query, &resources)
	return resources, err
}

func (s *ResourceService) Get(ctx context.Context, cluster, id string) (*rest.Resource, error) {
	var res *rest.Resource
	_, err := s.client.doGET(ctx, clusterPath(cluster, "resources", id), nil, &res)
	return res, err
}

func (s *ResourceService) Start(ctx context.Context, cluster, id string) (*rest.Resource, error) {
	return s.setTargetRole(ctx, cluster, id, true)
}

func (s *ResourceService) Stop(ctx context.Context, cluster, id string) (*rest.Resource, error) {
	return s.setTargetRole(ctx, cluster, id, false)
}

func (s *ResourceService) setTargetRole(ctx context.Context, cluster, id string, started bool) (*rest.Resource, error) {
	var res *rest.Resource
	_, err := s.client.doPUT(ctx, clusterPath(cluster, "resources", id, "target-role"), rest.TargetRole{Started: started}, &res)
	return res, err
}

// Delete removes a resource and every constraint referring to it.
func (s *ResourceService) Delete(ctx context.Context, cluster, id string) error {
	_, err := s.client.doDELETE(ctx, clusterPath(cluster, "resources", id))
	return err
}

// RunState reads the run state of a resource from the current CIB.
func (s *ResourceService) RunState(ctx context.Context, cluster, id string) (*rest.RunState, error) {
	var state *rest.RunState
	_, err := s.client.doGET(ctx, clusterPath(cluster, "resources", id, "run-state"), nil, &state)
	return state, err
}

// Ptest runs the policy engine and returns the resources as it would place
// them.
func (s *ResourceService) Ptest(ctx context.Context, cluster string) ([]rest.Resource, error) {
	var resources []rest.Resource
	_, err := s.client.doPOST(ctx, clusterPath(cluster, "ptest"), nil, &resources)
	return resources, err
}

func (s *ResourceService) ClearPtest(ctx context.Context, cluster string) error {
	_, err := s.client.doDELETE(ctx, clusterPath(cluster, "ptest"))
	return err
}

type DrbdService struct {
	client *Client
}

func (s *DrbdService) GetAll(ctx context.Context, cluster string) ([]rest.DrbdResource, error) {
	var resources []rest.DrbdResource
	_, err := s.client.doGET(ctx, clusterPath(cluster, "drbd"), nil, &resources)
	return resources, err
}

func (s *DrbdService) Get(ctx context.Context, cluster, name string) (*rest.DrbdResource, error) {
	var res *rest.DrbdResource
	_, err := s.client.doGET(ctx, clusterPath(cluster, "drbd", name), nil, &res)
	return res, err
}
