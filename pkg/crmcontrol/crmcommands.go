package crmcontrol

import (
	"github.com/LINBIT/lcmc/pkg/transport"
)

// CRM (Pacemaker) commands

type crmCommand struct {
	executable string
	arguments  []string
}

const (
	crmUtility = "cibadmin"
)

// crmUpdateCommand is the command for updating existing resources.
//
// Also used for deleting existing resources.
var crmUpdateCommand = crmCommand{crmUtility, []string{"--replace", "--xml-pipe"}}

// crmListCommand is the command for reading the CIB
var crmListCommand = crmCommand{crmUtility, []string{"--query"}}

func (c crmCommand) String() string {
	return transport.Command(c.executable, c.arguments...)
}

