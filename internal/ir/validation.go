package ir

// Lifecycle is the phase of the entry's life a validation is requested for.
type Lifecycle string

const (
	LifecycleChain Lifecycle = "chain" // local source-chain commit
	LifecycleDHT   Lifecycle = "dht"   // shared store admission
	LifecycleMeta  Lifecycle = "meta"  // links and other metadata
)

// Action is the kind of change that triggered the validation.
type Action string

const (
	ActionCommit Action = "commit"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// ChainHeader describes one header of the submitting agent's source chain.
type ChainHeader struct {
	EntryType    string `json:"entry_type"`
	EntryAddress string `json:"entry_address"`
	Timestamp    string `json:"timestamp"`
	Link         string `json:"link,omitempty"`
	LinkSameType string `json:"link_same_type,omitempty"`
	Signature    string `json:"signature,omitempty"`
}

// ValidationData is the context accompanying a validation request.
// The dispatcher never reads its fields: it is serialized whole into the
// "ctx" parameter for the validation module.
type ValidationData struct {
	Lifecycle          Lifecycle     `json:"lifecycle"`
	Action             Action        `json:"action"`
	Sources            []string      `json:"sources"`
	ChainHeader        *ChainHeader  `json:"chain_header,omitempty"`
	SourceChainHeaders []ChainHeader `json:"source_chain_headers,omitempty"`
}
