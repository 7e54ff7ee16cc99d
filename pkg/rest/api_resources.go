package rest

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/LINBIT/lcmc/pkg/cluster"
	"github.com/LINBIT/lcmc/pkg/crmcontrol"
)

// runMode reads the "mode" query parameter.
func runMode(w http.ResponseWriter, r *http.Request) (crmcontrol.RunMode, bool) {
	switch m := r.URL.Query().Get("mode"); m {
	case "", crmcontrol.Live.String():
		return crmcontrol.Live, true
	case crmcontrol.Test.String():
		return crmcontrol.Test, true
	default:
		MustError(http.StatusBadRequest, w, "unknown mode '%s'", m)
		return crmcontrol.Live, false
	}
}

// controlHost returns the host cluster wide changes of c are made on.
func controlHost(w http.ResponseWriter, c *cluster.Cluster) (string, bool) {
	host := c.ControlHost()
	if host == "" {
		MustError(http.StatusServiceUnavailable, w, "cluster '%s' has no hosts", c.Name)
		return "", false
	}
	return host, true
}

// cibUpdated writes the error response for a failed CIB change.
func cibUpdated(w http.ResponseWriter, err error, what string) bool {
	switch {
	case errors.Is(err, crmcontrol.ErrResourceNotFound):
		MustError(http.StatusNotFound, w, "%v", err)
		return false
	case err != nil:
		MustError(http.StatusInternalServerError, w, "%s: %v", what, err)
		return false
	}
	return true
}

func resourceView(c *cluster.Cluster, id string, mode crmcontrol.RunMode) Resource {
	q := c.Status.CibQuery()
	if mode == crmcontrol.Test && c.Status.PtestData() != nil {
		q = c.Status.ShadowCibQuery()
	}
	st, _ := c.Status.ResourceStatus(id, mode)
	st.Managed = c.Status.IsManaged(id, mode)
	res := Resource{
		ID:         id,
		Mode:       mode.String(),
		Status:     st,
		Parameters: c.Status.Parameters(id, mode),
		Meta:       q.MetaAttributes(id),
		Orphaned:   q.IsOrphaned(id),
	}
	if agent, ok := c.Status.ResourceAgent(id); ok {
		res.Agent = agent.String()
	}
	return res
}

func (s *server) ResourceList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.lookupCluster(w, r)
		if !ok {
			return
		}
		mode, ok := runMode(w, r)
		if !ok {
			return
		}
		resources := []Resource{}
		for _, id := range c.Status.CibQuery().Resources() {
			resources = append(resources, resourceView(c, id, mode))
		}
		writeJSON(w, resources)
	}
}

func (s *server) ResourceGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.lookupCluster(w, r)
		if !ok {
			return
		}
		mode, ok := runMode(w, r)
		if !ok {
			return
		}
		id := mux.Vars(r)["resource"]
		if _, ok := c.Status.ResourceAgent(id); !ok {
			MustError(http.StatusNotFound, w, "no resource '%s' in cluster '%s'", id, c.Name)
			return
		}
		writeJSON(w, resourceView(c, id, mode))
	}
}

// ResourceTargetRole starts or stops a resource through the control host of
// its cluster.
func (s *server) ResourceTargetRole() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.lookupCluster(w, r)
		if !ok {
			return
		}
		var role TargetRole
		if err := unmarshalBody(w, r, &role); err != nil {
			return
		}
		id := mux.Vars(r)["resource"]
		host, ok := controlHost(w, c)
		if !ok {
			return
		}

		err := crmcontrol.SetTargetRole(r.Context(), s.exec, host, id, role.Started)
		if !cibUpdated(w, err, "failed to set target role") {
			return
		}
		log.WithFields(log.Fields{
			"cluster":  c.Name,
			"resource": id,
			"started":  role.Started,
		}).Info("Changed target role")
		writeJSON(w, resourceView(c, id, crmcontrol.Live))
	}
}

// Ptest runs the policy engine on the control host and installs the result
// as the test mode view. DELETE drops it again.
func (s *server) Ptest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.lookupCluster(w, r)
		if !ok {
			return
		}
		if r.Method == http.MethodDelete {
			c.Status.SetPtestData(nil)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		host, ok := controlHost(w, c)
		if !ok {
			return
		}
		data, err := crmcontrol.FetchPtest(r.Context(), s.exec, host)
		if err != nil {
			MustError(http.StatusInternalServerError, w, "%v", err)
			return
		}
		c.Status.SetPtestData(data)

		resources := []Resource{}
		for _, id := range c.Status.CibQuery().Resources() {
			resources = append(resources, resourceView(c, id, crmcontrol.Test))
		}
		writeJSON(w, resources)
	}
}

// ResourceDelete removes a resource together with its constraints and LRM
// history. The status model catches up with the next poll.
func (s *server) ResourceDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.lookupCluster(w, r)
		if !ok {
			return
		}
		id := mux.Vars(r)["resource"]
		host, ok := controlHost(w, c)
		if !ok {
			return
		}
		err := crmcontrol.DeleteResources(r.Context(), s.exec, host, id)
		if !cibUpdated(w, err, "failed to delete resource") {
			return
		}
		log.WithFields(log.Fields{"cluster": c.Name, "resource": id}).Info("Deleted resource")
		w.WriteHeader(http.StatusNoContent)
	}
}

// ResourceRunState reads the run state of a resource from a fresh copy of the
// CIB instead of the polled status.
func (s *server) ResourceRunState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.lookupCluster(w, r)
		if !ok {
			return
		}
		id := mux.Vars(r)["resource"]
		host, ok := controlHost(w, c)
		if !ok {
			return
		}
		state, err := crmcontrol.ReadRunState(r.Context(), s.exec, host, id)
		if err != nil {
			MustError(http.StatusInternalServerError, w, "failed to read run state: %v", err)
			return
		}
		writeJSON(w, RunState{ID: id, Host: host, State: state.String()})
	}
}
