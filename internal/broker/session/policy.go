package session

import (
	"fmt"

	"github.com/dmitrijs2005/docbroker/internal/broker/channel"
)

// Policy selects how a session resolves a storage-upload conflict once a
// local modification exists. It is fixed at session construction.
type Policy int

const (
	// PolicyDisconnect severs the user transport on modification and
	// leaves any further uploads to the broker's exit-time save logic.
	PolicyDisconnect Policy = iota
	// PolicyDiscardOnSave saves on modification and abandons local edits
	// with a close once the storage layer reports the problem.
	PolicyDiscardOnSave
	// PolicyDiscardOnClose closes on modification, letting the exit-time
	// save surface the storage problem, then abandons local edits.
	PolicyDiscardOnClose
	// PolicyForceOverwrite saves on modification and, when storage
	// objects, resends with the force flag to overwrite remote content.
	PolicyForceOverwrite
	// PolicyVerifyOnly opens the document purely to inspect it; any
	// modification or storage error is a contract violation.
	PolicyVerifyOnly
)

func (p Policy) String() string {
	switch p {
	case PolicyDisconnect:
		return "disconnect"
	case PolicyDiscardOnSave:
		return "discard-on-save"
	case PolicyDiscardOnClose:
		return "discard-on-close"
	case PolicyForceOverwrite:
		return "force-overwrite"
	case PolicyVerifyOnly:
		return "verify-only"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a configuration string onto a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "disconnect":
		return PolicyDisconnect, nil
	case "discard-on-save":
		return PolicyDiscardOnSave, nil
	case "discard-on-close":
		return PolicyDiscardOnClose, nil
	case "force-overwrite":
		return PolicyForceOverwrite, nil
	case "verify-only":
		return PolicyVerifyOnly, nil
	default:
		return 0, fmt.Errorf("unknown policy %q", s)
	}
}

// policyRules is the reaction table for a Policy. Empty command strings
// mean "no command"; the boolean flags mark reactions that are not
// commands.
type policyRules struct {
	// onModified is the command issued when the modification notification
	// arrives.
	onModified string
	// disconnectOnModified severs the transport instead of commanding.
	disconnectOnModified bool
	// modifiedIsViolation marks policies that must never see an edit.
	modifiedIsViolation bool
	// onStorageError is the command issued in reaction to a storage error
	// notification; empty means any such error is a violation.
	onStorageError string
	// closeAfterPutResult issues closedocument once a PutFile outcome has
	// been consumed, finalizing the force-overwrite cycle.
	closeAfterPutResult bool
	// expectsUpload is false for sessions that must never attempt PutFile.
	expectsUpload bool
}

var policyTable = map[Policy]policyRules{
	PolicyDisconnect: {
		disconnectOnModified: true,
		expectsUpload:        true,
	},
	PolicyDiscardOnSave: {
		onModified:     channel.CmdSave,
		onStorageError: channel.CmdCloseDocument,
		expectsUpload:  true,
	},
	PolicyDiscardOnClose: {
		onModified:     channel.CmdCloseDocument,
		onStorageError: channel.CmdCloseDocument,
		expectsUpload:  true,
	},
	PolicyForceOverwrite: {
		onModified:          channel.CmdSave,
		onStorageError:      channel.CmdSaveToStorageForce,
		closeAfterPutResult: true,
		expectsUpload:       true,
	},
	PolicyVerifyOnly: {
		modifiedIsViolation: true,
	},
}

func (p Policy) rules() policyRules {
	return policyTable[p]
}

// ExpectsUpload reports whether the policy permits PutFile attempts at
// all. Policies that only inspect the document must never upload.
func (p Policy) ExpectsUpload() bool {
	return p.rules().expectsUpload
}
