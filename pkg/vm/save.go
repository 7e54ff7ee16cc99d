package vm

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"bitbucket.org/creachadair/shell"
	xmltree "github.com/beevik/etree"
	"github.com/sergi/go-diff/diffmatchpatch"
	log "github.com/sirupsen/logrus"

	"github.com/LINBIT/lcmc/pkg/transport"
)

// ConfigDir is where libvirt keeps qemu domain definitions.
const ConfigDir = "/etc/libvirt/qemu"

// DomainPath returns the definition file of a domain.
func DomainPath(name string) string {
	return filepath.Join(ConfigDir, name+".xml")
}

// saveCommand writes its standard input to path.new, moves it over path and
// defines the domain from it. libvirt never sees a partially written file.
func saveCommand(path string) string {
	tmp := path + ".new"
	return "cat > " + shell.Quote(tmp) +
		" && " + transport.Command("mv", "-f", tmp, path) +
		" && " + transport.Command("virsh", "define", path)
}

// SaveDomain writes doc to path on host and defines it.
func SaveDomain(ctx context.Context, exec transport.Executor, host, path string, doc *xmltree.Document) error {
	data, err := doc.WriteToString()
	if err != nil {
		return fmt.Errorf("could not serialize domain: %w", err)
	}
	log.WithFields(log.Fields{"host": host, "path": path}).Debug("Saving domain definition")
	if _, err := exec.ExecuteInput(ctx, host, saveCommand(path), strings.NewReader(data)); err != nil {
		return fmt.Errorf("could not define domain from %s on %s: %w", path, host, err)
	}
	return nil
}

// Diff renders the changes between two definitions for review.
func Diff(oldXML, newXML string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldXML, newXML, false)
	return dmp.DiffPrettyText(diffs)
}

