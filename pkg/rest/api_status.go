package rest

import (
	"net/http"

	"github.com/LINBIT/lcmc/pkg/cluster"
)

// statusSeen reports whether any host of c delivered a status.
func statusSeen(c *cluster.Cluster) bool {
	for _, h := range c.Hosts() {
		if h.FirstStatus().IsOpen() {
			return true
		}
	}
	return false
}

// APIStatus reports that the API is up. Ready is set once every cluster
// delivered its first status.
func (s *server) APIStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := true
		for _, c := range s.registry.Clusters() {
			ready = ready && statusSeen(c)
		}
		writeJSON(w, Status{Status: "ok", Ready: ready})
	}
}
