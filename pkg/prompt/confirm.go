// Package prompt asks the operator before changes are applied.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Confirm displays a prompt `s` on stdout and reads the answer from stdin.
// See ConfirmFrom.
func Confirm(s string) bool {
	return ConfirmFrom(os.Stdin, os.Stdout, s)
}

// ConfirmFrom displays a prompt `s` and returns true if the user confirmed.
// If the lower cased, trimmed input is equal to 'y' or 'yes', that is
// considered to be a confirmation. Any other input value, or no input at
// all, returns false.
func ConfirmFrom(in io.Reader, out io.Writer, s string) bool {
	r := bufio.NewReader(in)

	fmt.Fprintf(out, "%s [y/N]: ", s)

	res, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || res == "") {
		if err != io.EOF {
			log.Error(err)
		}
		return false
	}

	switch strings.ToLower(strings.TrimSpace(res)) {
	case "y", "yes":
		return true
	}
	return false
}
