// Package shared holds the wire-facing value types and the naming layer
// of the protocol: the handshake payloads, the opaque options record, and
// the mapping from internal operation identifiers to wire method names.
package shared

import "time"

// ServerInfo identifies the server process in the handshake result.
type ServerInfo struct {
	Name           string     `json:"name"`
	ProcessID      int        `json:"processId"`
	StartTimestamp *time.Time `json:"startTimestamp,omitempty"`
	Version        string     `json:"version"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Options is the configuration record negotiated during the handshake.
// The framework treats it as an opaque value; its contents belong to the
// embedding protocol.
type Options map[string]interface{}

// Clone returns a shallow copy of the options record.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	clone := make(Options, len(o))
	for k, v := range o {
		clone[k] = v
	}
	return clone
}

// InitializeParams carries the client's initialization parameters.
type InitializeParams struct {
	ClientName    string     `json:"clientName"`
	ClientVersion string     `json:"clientVersion,omitempty"`
	ClientInfo    ClientInfo `json:"clientInfo,omitempty"`
	ProcessID     int        `json:"processId,omitempty"`
	Capabilities  Options    `json:"capabilities,omitempty"`
}

// InitializeResult is the handshake result: the server's identity joined
// with the negotiated capabilities.
type InitializeResult struct {
	ServerInfo   ServerInfo `json:"serverInfo"`
	Capabilities Options    `json:"capabilities"`
}
