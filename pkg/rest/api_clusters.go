package rest

import (
	"net/http"

	"github.com/LINBIT/lcmc/pkg/cluster"
	"github.com/LINBIT/lcmc/pkg/crmcontrol"
)

func clusterSummary(c *cluster.Cluster) Cluster {
	return Cluster{
		Name:        c.Name,
		Hosts:       c.HostNames(),
		DC:          c.Status.DC(),
		ControlHost: c.ControlHost(),
		StatusSeen:  statusSeen(c),
	}
}

func (s *server) ClusterList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clusters := []Cluster{}
		for _, c := range s.registry.Clusters() {
			clusters = append(clusters, clusterSummary(c))
		}
		writeJSON(w, clusters)
	}
}

func (s *server) ClusterGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.lookupCluster(w, r)
		if !ok {
			return
		}
		writeJSON(w, clusterSummary(c))
	}
}

func (s *server) NodeList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.lookupCluster(w, r)
		if !ok {
			return
		}
		dc := c.Status.DC()
		cib := c.Status.CibQuery()
		nodes := []Node{}
		for _, n := range c.Status.Nodes() {
			nodes = append(nodes, Node{
				Name:      n,
				ID:        cib.NodeID(n),
				Online:    c.Status.IsOnline(n),
				Pending:   c.Status.IsPending(n),
				Fenced:    c.Status.IsFenced(n),
				DC:        n == dc,
				PingCount: c.Status.PingCount(n, crmcontrol.Live),
			})
		}
		writeJSON(w, nodes)
	}
}

func (s *server) ConstraintList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.lookupCluster(w, r)
		if !ok {
			return
		}
		connections := c.Status.Connections()
		if connections == nil {
			connections = []crmcontrol.Connection{}
		}
		cons := Constraints{Connections: connections}
		for _, conn := range connections {
			if _, ok := cons.Sets[conn.ConstraintID]; ok {
				continue
			}
			if sets := c.Status.ResourceSets(conn.ConstraintID); len(sets) > 0 {
				if cons.Sets == nil {
					cons.Sets = make(map[string][]crmcontrol.ResourceSet)
				}
				cons.Sets[conn.ConstraintID] = sets
			}
		}
		writeJSON(w, cons)
	}
}

func (s *server) ClusterConfigGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.lookupCluster(w, r)
		if !ok {
			return
		}
		cib := c.Status.CibQuery()
		writeJSON(w, ClusterConfig{
			Properties:  c.Status.GlobalConfig(),
			RscDefaults: cib.RscDefaults(),
			OpDefaults:  cib.OpDefaults(),
		})
	}
}
