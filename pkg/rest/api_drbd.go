package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/LINBIT/lcmc/pkg/cluster"
	"github.com/LINBIT/lcmc/pkg/drbd"
	"github.com/LINBIT/lcmc/pkg/host"
)

func drbdResourceView(c *cluster.Cluster, t *drbd.Topology, name string) (DrbdResource, bool) {
	r, ok := t.Resource(name)
	if !ok {
		return DrbdResource{}, false
	}
	view := DrbdResource{
		Resource: r,
		Hosts:    t.Hosts(name),
		Devices:  make(map[string]map[string]host.DrbdDeviceState),
	}
	for _, hostName := range view.Hosts {
		h, ok := c.Host(hostName)
		if !ok {
			continue
		}
		for _, vol := range t.Volumes(name) {
			dev, ok := t.DevicePath(name, vol, hostName)
			if !ok {
				continue
			}
			if st, ok := h.DrbdDevice(dev); ok {
				if view.Devices[hostName] == nil {
					view.Devices[hostName] = make(map[string]host.DrbdDeviceState)
				}
				view.Devices[hostName][dev] = st
			}
		}
	}
	return view, true
}

func (s *server) DrbdList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.lookupCluster(w, r)
		if !ok {
			return
		}
		t := c.Drbd.Topology()
		resources := []DrbdResource{}
		for _, name := range t.Resources() {
			if view, ok := drbdResourceView(c, t, name); ok {
				resources = append(resources, view)
			}
		}
		writeJSON(w, resources)
	}
}

func (s *server) DrbdGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.lookupCluster(w, r)
		if !ok {
			return
		}
		name := mux.Vars(r)["resource"]
		view, ok := drbdResourceView(c, c.Drbd.Topology(), name)
		if !ok {
			MustError(http.StatusNotFound, w, "no DRBD resource '%s' in cluster '%s'", name, c.Name)
			return
		}
		writeJSON(w, view)
	}
}

func (s *server) DrbdSchema() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.lookupCluster(w, r)
		if !ok {
			return
		}
		schema := c.Drbd.Schema()
		params := []drbd.Param{}
		for _, name := range schema.Params() {
			if p, ok := schema.Param(name); ok {
				params = append(params, p)
			}
		}
		writeJSON(w, params)
	}
}
