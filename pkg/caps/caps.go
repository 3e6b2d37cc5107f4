// Package caps talks to the grid's HTTP capabilities: LLSD XML documents
// posted to per-session URLs the simulator advertises.
//
// Capability discovery happens outside this library; callers hand in a
// Provider mapping capability names to URLs.
package caps

import (
	"errors"
	"fmt"
)

// Capability names used by the inventory client.
const (
	FetchInventoryDescendents2   = "FetchInventoryDescendents2"
	FetchInventory2              = "FetchInventory2"
	FetchLibDescendents2         = "FetchLibDescendents2"
	FetchLib2                    = "FetchLib2"
	NewFileAgentInventory        = "NewFileAgentInventory"
	UpdateNotecardAgentInventory = "UpdateNotecardAgentInventory"
	UpdateScriptAgent            = "UpdateScriptAgent"
	UpdateGestureAgentInventory  = "UpdateGestureAgentInventory"
)

// Provider resolves capability names to URLs.
type Provider interface {
	// CapabilityURL returns the URL of the named capability, false when the
	// simulator does not advertise it.
	CapabilityURL(name string) (string, bool)
}

// StaticProvider is a fixed capability table.
type StaticProvider map[string]string

// CapabilityURL implements Provider.
func (p StaticProvider) CapabilityURL(name string) (string, bool) {
	url, ok := p[name]
	return url, ok && url != ""
}

// ErrUploadFailed is returned when the uploader exchange ends in a state
// other than "complete".
var ErrUploadFailed = errors.New("caps: upload failed")

// StatusError reports a non-2xx capability response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("caps: %s returned HTTP %d", e.URL, e.StatusCode)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
