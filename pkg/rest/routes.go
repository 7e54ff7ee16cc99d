package rest

func (s *server) routes() {
	s.router.HandleFunc("/api/v1/status", s.APIStatus()).Methods("GET")
	s.router.HandleFunc("/api/v1/clusters", s.ClusterList()).Methods("GET")
	s.router.HandleFunc("/api/v1/clusters/{cluster}", s.ClusterGet()).Methods("GET")
	s.router.HandleFunc("/api/v1/clusters/{cluster}/config", s.ClusterConfigGet()).Methods("GET")
	s.router.HandleFunc("/api/v1/clusters/{cluster}/nodes", s.NodeList()).Methods("GET")
	s.router.HandleFunc("/api/v1/clusters/{cluster}/constraints", s.ConstraintList()).Methods("GET")
	s.router.HandleFunc("/api/v1/clusters/{cluster}/resources", s.ResourceList()).Methods("GET")
	s.router.HandleFunc("/api/v1/clusters/{cluster}/resources/{resource}", s.ResourceGet()).Methods("GET")
	s.router.HandleFunc("/api/v1/clusters/{cluster}/resources/{resource}", s.ResourceDelete()).Methods("DELETE")
	s.router.HandleFunc("/api/v1/clusters/{cluster}/resources/{resource}/run-state", s.ResourceRunState()).Methods("GET")
	s.router.HandleFunc("/api/v1/clusters/{cluster}/resources/{resource}/target-role", s.ResourceTargetRole()).Methods("PUT")
	s.router.HandleFunc("/api/v1/clusters/{cluster}/ptest", s.Ptest()).Methods("POST", "DELETE")
	s.router.HandleFunc("/api/v1/clusters/{cluster}/drbd", s.DrbdList()).Methods("GET")
	s.router.HandleFunc("/api/v1/clusters/{cluster}/drbd/schema", s.DrbdSchema()).Methods("GET")
	s.router.HandleFunc("/api/v1/clusters/{cluster}/drbd/{resource}", s.DrbdGet()).Methods("GET")
	s.router.HandleFunc("/api/v1/hosts/{host}", s.HostGet()).Methods("GET")
	s.router.HandleFunc("/api/v1/hosts/{host}/vms", s.VMList()).Methods("GET")
	s.router.HandleFunc("/api/v1/hosts/{host}/vms/{vm}", s.VMGet()).Methods("GET")
	s.router.HandleFunc("/api/v1/hosts/{host}/vms/{vm}/xml", s.VMGetXML()).Methods("GET")
	s.router.HandleFunc("/api/v1/hosts/{host}/networks", s.NetworkList()).Methods("GET")
}
