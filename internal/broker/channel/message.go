// Package channel implements the session command channel: the wire
// vocabulary exchanged between user sessions and the document broker, and
// a gRPC stream transport carrying it. Inbound messages are commands
// ("save ...", "savetostorage force=1", "closedocument"); outbound
// messages are notifications ("modified=true", "error: cmd=storage
// kind=savefailed", "destroyed: dockey=...").
package channel

import (
	"fmt"
	"strings"
)

// Command names.
const (
	CommandOpen          = "open"
	CommandEdit          = "edit"
	CommandSave          = "save"
	CommandSaveToStorage = "savetostorage"
	CommandCloseDocument = "closedocument"
)

// Canonical command lines issued by the conflict-resolution engine.
const (
	CmdSave               = "save dontTerminateEdit=0 dontSaveIfUnmodified=0"
	CmdSaveToStorageForce = "savetostorage force=1"
	CmdCloseDocument      = "closedocument"
)

// Storage error kinds carried by "error: cmd=storage kind=<kind>".
const (
	KindSaveFailed       = "savefailed"
	KindDocumentConflict = "documentconflict"
)

const storageErrorPrefix = "error: cmd=storage kind="

// Command is a parsed inbound command line: a name followed by
// space-separated key=value arguments.
type Command struct {
	Name string
	Args map[string]string
}

// ParseCommand splits a command line into its name and arguments.
func ParseCommand(line string) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := &Command{Name: fields[0], Args: make(map[string]string)}
	for _, f := range fields[1:] {
		k, v, found := strings.Cut(f, "=")
		if !found || k == "" {
			return nil, fmt.Errorf("malformed argument %q in command %q", f, fields[0])
		}
		cmd.Args[k] = v
	}
	return cmd, nil
}

// Bool interprets the argument value for key as a flag; "1" and "true"
// are true, anything else (including absence) is false.
func (c *Command) Bool(key string) bool {
	v := c.Args[key]
	return v == "1" || v == "true"
}

// StorageError formats the outbound storage error notification.
func StorageError(kind string) string {
	return storageErrorPrefix + kind
}

// ParseStorageError extracts the kind from a storage error notification.
// ok is false when msg is not a storage error at all.
func ParseStorageError(msg string) (kind string, ok bool) {
	if !strings.HasPrefix(msg, storageErrorPrefix) {
		return "", false
	}
	return msg[len(storageErrorPrefix):], true
}

// ModifiedNotification formats the document-modified status notification.
func ModifiedNotification(modified bool) string {
	return fmt.Sprintf("modified=%t", modified)
}

// DestroyedNotification formats the final notification sent when a
// document broker is destroyed.
func DestroyedNotification(docKey string) string {
	return fmt.Sprintf("destroyed: dockey=%s", docKey)
}
