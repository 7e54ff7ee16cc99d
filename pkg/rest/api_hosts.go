package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/LINBIT/lcmc/pkg/vm"
)

func (s *server) HostGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, h, ok := s.lookupHost(w, r)
		if !ok {
			return
		}
		writeJSON(w, Host{
			Name:          h.Name(),
			Cluster:       c.Name,
			DrbdLoaded:    h.DrbdLoaded(),
			Installation:  h.Installation(),
			Daemons:       h.Daemons(),
			BlockDevices:  h.BlockDevices(),
			NetInterfaces: h.NetInterfaces(),
			VolumeGroups:  h.VolumeGroups(),
			CryptoModules: h.CryptoModules(),
			DrbdDevices:   h.DrbdDevices(),
		})
	}
}

func (s *server) VMList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, h, ok := s.lookupHost(w, r)
		if !ok {
			return
		}
		model := c.VMs(h.Name())
		domains := []*vm.DomainData{}
		for _, name := range model.DomainNames() {
			if d, ok := model.Domain(name); ok {
				domains = append(domains, d)
			}
		}
		writeJSON(w, domains)
	}
}

func (s *server) VMGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, h, ok := s.lookupHost(w, r)
		if !ok {
			return
		}
		name := mux.Vars(r)["vm"]
		d, ok := c.VMs(h.Name()).Domain(name)
		if !ok {
			MustError(http.StatusNotFound, w, "no domain '%s' on host '%s'", name, h.Name())
			return
		}
		writeJSON(w, d)
	}
}

// VMGetXML returns the domain definition as libvirt stores it.
func (s *server) VMGetXML() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, h, ok := s.lookupHost(w, r)
		if !ok {
			return
		}
		name := mux.Vars(r)["vm"]
		xml, ok := c.VMs(h.Name()).DomainXML(name)
		if !ok {
			MustError(http.StatusNotFound, w, "no domain '%s' on host '%s'", name, h.Name())
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(xml))
	}
}

func (s *server) NetworkList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, h, ok := s.lookupHost(w, r)
		if !ok {
			return
		}
		model := c.VMs(h.Name())
		networks := []*vm.NetworkData{}
		for _, name := range model.NetworkNames() {
			if n, ok := model.Network(name); ok {
				networks = append(networks, n)
			}
		}
		writeJSON(w, networks)
	}
}
