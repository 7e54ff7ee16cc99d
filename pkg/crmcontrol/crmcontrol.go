// Package crmcontrol models the state of a Pacemaker cluster and applies
// changes to it.
//
// The status helper on a cluster node prints framed snapshots of the
// resource status, the CIB and the fenced nodes. ClusterStatus parses them
// into immutable CibQuery snapshots that are swapped atomically, so readers
// never block the parser.
// Changes are applied with the 'cibadmin' utility by
//   - reading and parsing the current CIB XML,
//   - modifying the contents (e.g. setting a target-role or removing tags and
//     their nested tags),
//   - and replacing the CIB with the modified document.
//
// The 'etree' package is used for XML parsing and modification.
package crmcontrol

import (
	"context"
	"errors"
	"fmt"
	"strings"

	xmltree "github.com/beevik/etree"
	log "github.com/sirupsen/logrus"

	"github.com/LINBIT/lcmc/pkg/transport"
)

// Pacemaker CIB XML XPaths
const (
	cibRscXpath    = "/cib/configuration/resources"
	cibStatusXpath = "/cib/status"
)

// Pacemaker CIB XML tag names
const (
	cibTagCib           = "cib"
	cibTagConfiguration = "configuration"
	cibTagResources     = "resources"
	cibTagConstraints   = "constraints"
	cibTagStatus        = "status"
	cibTagPrimitive     = "primitive"
	cibTagGroup         = "group"
	cibTagClone         = "clone"
	cibTagMaster        = "master"
	cibTagLocation      = "rsc_location"
	cibTagColocation    = "rsc_colocation"
	cibTagOrder         = "rsc_order"
	cibTagRscSet        = "resource_set"
	cibTagRscRef        = "resource_ref"
	cibTagMetaAttr      = "meta_attributes"
	cibTagInstAttr      = "instance_attributes"
	cibTagNvPair        = "nvpair"
	cibTagLrm           = "lrm"
	cibTagLrmRsclist    = "lrm_resources"
	cibTagLrmRsc        = "lrm_resource"
	cibTagLrmRscOp      = "lrm_rsc_op"
)

// Pacemaker CIB attribute names
const (
	cibAttrKeyID           = "id"
	cibAttrKeyName         = "name"
	cibAttrKeyValue        = "value"
	cibAttrKeyOperation    = "operation"
	cibAttrKeyRcCode       = "rc-code"
	cibAttrValueTargetRole = "target-role"
	cibAttrValueStarted    = "Started"
	cibAttrValueStopped    = "Stopped"
	cibAttrValueStop       = "stop"
	cibAttrValueStart      = "start"
	cibAttrValueMonitor    = "monitor"
	cibAttrValuePromote    = "promote"
	cibAttrValueDemote     = "demote"
)

// OCF exit codes
const (
	ocfSuccess       = 0
	ocfNotRunning    = 7
	ocfRunningMaster = 8
)

// maxRecursionLevel bounds the walks through nested CIB elements.
const maxRecursionLevel = 40

var errMaxRecursion = errors.New("CIB nesting exceeds the maximum depth")

// ErrResourceNotFound is returned when a change names a resource the CIB
// does not contain.
var ErrResourceNotFound = errors.New("CRM resource not found in the CIB")

// LrmRunState is what the LRM history says about a resource.
type LrmRunState int

const (
	Unknown LrmRunState = iota
	Running
	Stopped
)

func (s LrmRunState) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	}
	return "Unknown"
}

// ReadConfiguration reads the CIB of the cluster host belongs to.
func ReadConfiguration(ctx context.Context, exec transport.Executor, host string) (*xmltree.Document, error) {
	res, err := exec.Execute(ctx, host, crmListCommand.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query CIB on %s: %w", host, err)
	}

	docRoot := xmltree.NewDocument()
	err = docRoot.ReadFromString(res.Output)
	if err != nil {
		return nil, err
	}

	return docRoot, nil
}

// findResourceElement finds a primitive, group, clone or master/slave set.
func findResourceElement(doc *xmltree.Document, id string) *xmltree.Element {
	for _, tag := range []string{cibTagPrimitive, cibTagGroup, cibTagClone, cibTagMaster} {
		if e := doc.FindElement(cibRscXpath + "//" + tag + "[@" + cibAttrKeyID + "='" + id + "']"); e != nil {
			return e
		}
	}
	return nil
}

// modifyCrmTargetRole sets the target-role meta attribute of id to Started
// or Stopped, creating the meta_attributes block if needed.
func modifyCrmTargetRole(id string, startFlag bool, doc *xmltree.Document) (*xmltree.Document, error) {
	rscElem := findResourceElement(doc, id)
	if rscElem == nil {
		return nil, fmt.Errorf("%w: cannot modify role of %s", ErrResourceNotFound, id)
	}

	var tgtRoleEntry *xmltree.Element
	metaAttr := rscElem.SelectElement(cibTagMetaAttr)
	if metaAttr != nil {
		tgtRoleEntry = metaAttr.FindElement(cibTagNvPair + "[@" + cibAttrKeyName + "='" + cibAttrValueTargetRole + "']")
	} else {
		metaAttr = rscElem.CreateElement(cibTagMetaAttr)
		metaAttr.CreateAttr(cibAttrKeyID, id+"-"+cibTagMetaAttr)
	}
	if tgtRoleEntry == nil {
		tgtRoleEntry = metaAttr.CreateElement(cibTagNvPair)
		tgtRoleEntry.CreateAttr(cibAttrKeyID, metaAttr.SelectAttrValue(cibAttrKeyID, id)+"-"+cibAttrValueTargetRole)
		tgtRoleEntry.CreateAttr(cibAttrKeyName, cibAttrValueTargetRole)
	}
	tgtRoleValue := cibAttrValueStopped
	if startFlag {
		tgtRoleValue = cibAttrValueStarted
	}
	tgtRoleEntry.CreateAttr(cibAttrKeyValue, tgtRoleValue)

	return doc, nil
}

// SetTargetRole starts or stops a resource.
func SetTargetRole(ctx context.Context, exec transport.Executor, host, rscID string, started bool) error {
	doc, err := ReadConfiguration(ctx, exec, host)
	if err != nil {
		return err
	}

	doc, err = modifyCrmTargetRole(rscID, started, doc)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"resource": rscID,
		"started":  started,
	}).Debug("Setting target-role")

	return executeCibUpdate(ctx, exec, host, doc, crmUpdateCommand)
}

// RemoveResourceConstraints removes every constraint and LRM entry
// referring to one of ids from doc.
func RemoveResourceConstraints(doc *xmltree.Document, ids []string) error {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return pruneReferences(&doc.Element, set, 0)
}

// DeleteResources removes resources, every constraint referring to them and
// their LRM history from the CIB.
func DeleteResources(ctx context.Context, exec transport.Executor, host string, ids ...string) error {
	doc, err := ReadConfiguration(ctx, exec, host)
	if err != nil {
		return err
	}

	for _, id := range ids {
		rscElem := findResourceElement(doc, id)
		if rscElem == nil {
			return fmt.Errorf("%w: cannot delete %s", ErrResourceNotFound, id)
		}
		rscElem.Parent().RemoveChildAt(rscElem.Index())
	}

	if err := RemoveResourceConstraints(doc, ids); err != nil {
		return err
	}

	return executeCibUpdate(ctx, exec, host, doc, crmUpdateCommand)
}

// ReadRunState reads the run state of a resource from the LRM history.
func ReadRunState(ctx context.Context, exec transport.Executor, host, rscID string) (LrmRunState, error) {
	doc, err := ReadConfiguration(ctx, exec, host)
	if err != nil {
		return Unknown, err
	}
	return lrmState(rscID, doc), nil
}

// lrmState combines the run state of id over all nodes.
func lrmState(id string, doc *xmltree.Document) LrmRunState {
	state := Unknown
	xpath := cibStatusXpath + "/node_state/" + cibTagLrm + "/" + cibTagLrmRsclist + "/" + cibTagLrmRsc + "[@id='" + id + "']"
	for _, lrmRsc := range doc.FindElements(xpath) {
		state = runState(id, lrmRsc, state)
	}
	return state
}

func executeCibUpdate(ctx context.Context, exec transport.Executor, host string, doc *xmltree.Document, crmCmd crmCommand) error {
	cibData, err := doc.WriteToString()
	if err != nil {
		return err
	}

	logger := log.WithFields(log.Fields{"host": host, "command": crmCmd.String()})
	res, err := exec.ExecuteInput(ctx, host, crmCmd.String(), strings.NewReader(cibData))
	if err != nil {
		logger.WithError(err).Warn("CIB update failed")
		logger.Trace(cibData)
		return fmt.Errorf("failed to update CIB on %s: %w", host, err)
	}
	logger.Debugf("CIB updated: %q", res.Output)
	return nil
}

// referenceAttrs are the attributes by which a constraint names resources.
// Constraints made of resource sets name them in resource_ref elements.
var referenceAttrs = map[string][]string{
	cibTagLocation:   {"rsc"},
	cibTagColocation: {"rsc", "with-rsc"},
	cibTagOrder:      {"first", "then"},
}

// pruneReferences removes every constraint and LRM entry below e that names
// one of ids.
func pruneReferences(e *xmltree.Element, ids map[string]bool, depth int) error {
	if depth >= maxRecursionLevel {
		return errMaxRecursion
	}

	var drop []*xmltree.Element
	for _, child := range e.ChildElements() {
		_, isConstraint := referenceAttrs[child.Tag]
		if !isConstraint && child.Tag != cibTagLrmRsc {
			if err := pruneReferences(child, ids, depth+1); err != nil {
				return err
			}
			continue
		}
		refers, err := refersTo(child, ids, depth+1)
		if err != nil {
			return err
		}
		if refers {
			drop = append(drop, child)
		}
	}
	for _, child := range drop {
		log.WithFields(log.Fields{
			"type": child.Tag,
			"id":   child.SelectAttrValue(cibAttrKeyID, ""),
		}).Debug("Removing reference")
		e.RemoveChild(child)
	}
	return nil
}

// refersTo reports whether a constraint or LRM entry names one of ids.
func refersTo(e *xmltree.Element, ids map[string]bool, depth int) (bool, error) {
	if e.Tag == cibTagLrmRsc {
		id := e.SelectAttr(cibAttrKeyID)
		if id == nil {
			return false, fmt.Errorf("%s without %s attribute", e.Tag, cibAttrKeyID)
		}
		return ids[baseResourceID(id.Value)], nil
	}

	if e.SelectElement(cibTagRscSet) == nil {
		var named []string
		for _, name := range referenceAttrs[e.Tag] {
			attr := e.SelectAttr(name)
			if attr == nil {
				// locations may match resources by rsc-pattern
				if e.Tag == cibTagLocation {
					continue
				}
				return false, fmt.Errorf("%s %q without %s attribute", e.Tag, e.SelectAttrValue(cibAttrKeyID, ""), name)
			}
			named = append(named, attr.Value)
		}
		for _, n := range named {
			if ids[n] {
				return true, nil
			}
		}
	}
	return setRefersTo(e, ids, depth)
}

// setRefersTo searches the resource_ref elements below e.
func setRefersTo(e *xmltree.Element, ids map[string]bool, depth int) (bool, error) {
	if depth >= maxRecursionLevel {
		return false, errMaxRecursion
	}
	for _, child := range e.ChildElements() {
		if child.Tag != cibTagRscRef {
			if found, err := setRefersTo(child, ids, depth+1); err != nil || found {
				return found, err
			}
			continue
		}
		id := child.SelectAttr(cibAttrKeyID)
		if id == nil {
			return false, fmt.Errorf("%s without %s attribute", child.Tag, cibAttrKeyID)
		}
		if ids[id.Value] {
			return true, nil
		}
	}
	return false, nil
}

// lrmOps is the order in which recorded operations decide the run state.
// The first operation present decides: a match yields ifMatch unless an
// earlier node already decided, anything else yields otherwise.
var lrmOps = []struct {
	operation string
	match     func(rc int) bool
	ifMatch   LrmRunState
	otherwise LrmRunState
}{
	{cibAttrValueStop, func(rc int) bool { return rc == ocfSuccess }, Stopped, Running},
	{cibAttrValueMonitor, func(rc int) bool { return rc == ocfNotRunning }, Stopped, Running},
	{cibAttrValueStart, func(rc int) bool { return rc == ocfSuccess || rc == ocfRunningMaster }, Running, Stopped},
}

// runState folds the operation history of one lrm_resource into prev.
func runState(id string, lrmRsc *xmltree.Element, prev LrmRunState) LrmRunState {
	for _, op := range lrmOps {
		entry := lrmRsc.FindElement(cibTagLrmRscOp + "[@" + cibAttrKeyOperation + "='" + op.operation + "']")
		if entry == nil {
			continue
		}
		rc, err := lrmRcCode(entry)
		if err != nil {
			log.WithField("resource", id).Warn(err)
			return prev
		}
		if !op.match(rc) {
			return op.otherwise
		}
		if prev == Unknown {
			return op.ifMatch
		}
		return prev
	}
	return prev
}
