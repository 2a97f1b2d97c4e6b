package shared

// Internal operation identifiers. Commands are registered under these
// names; the naming layer resolves them to wire method names.
const (
	OpInitialize    = "Initialize"
	OpInitialized   = "Initialized"
	OpShutdown      = "Shutdown"
	OpExit          = "Exit"
	OpCancelRequest = "CancelRequest"
)

// Wire method names fixed by the external protocol.
const (
	MethodInitialize    = "initialize"
	MethodInitialized   = "initialized"
	MethodShutdown      = "shutdown"
	MethodExit          = "exit"
	MethodCancelRequest = "$/cancelRequest"
)

// ComplianceTable maps internal operation identifiers to the exact wire
// names the external protocol mandates. Identifiers absent from the table
// fall back to the naming convention transform.
func ComplianceTable() map[string]string {
	return map[string]string{
		OpInitialize:    MethodInitialize,
		OpInitialized:   MethodInitialized,
		OpShutdown:      MethodShutdown,
		OpExit:          MethodExit,
		OpCancelRequest: MethodCancelRequest,
	}
}
