package ir

// NOTE: These are store-internal types, not part of the wire contract.
// They use auto-increment IDs (store layer) alongside logical seq numbers.

// VerdictRecord is one row of the append-only verdict log.
type VerdictRecord struct {
	ID           int64   `json:"id"`                      // Auto-increment (store)
	Seq          int64   `json:"seq"`                     // Logical clock
	Token        string  `json:"token"`                   // Dispatch correlation token
	InvocationID string  `json:"invocation_id,omitempty"` // Empty when no call was built
	App          string  `json:"app"`
	EntryType    string  `json:"entry_type"`
	EntryAddress string  `json:"entry_address"`
	Module       string  `json:"module,omitempty"`
	Function     string  `json:"function,omitempty"`
	Outcome      Outcome `json:"outcome"`
	Reason       string  `json:"reason,omitempty"`
}
