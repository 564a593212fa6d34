package ir

import "fmt"

// ModuleIdentity names an application module able to run validation
// functions. Obtained only through an Application Registry.
type ModuleIdentity struct {
	App    string `json:"app"`
	Module string `json:"module"`
}

// String returns "app/module".
func (m ModuleIdentity) String() string {
	return fmt.Sprintf("%s/%s", m.App, m.Module)
}

// RuntimeCUE is the only module runtime the sandbox executes.
const RuntimeCUE = "cue"

// CodeArtifact is the code of a module. A zero-length Code is treated as
// absent by the dispatcher, never as an empty but valid module.
type CodeArtifact struct {
	Module  ModuleIdentity `json:"module"`
	Runtime string         `json:"runtime"`
	Code    []byte         `json:"code"`
	Digest  string         `json:"digest,omitempty"` // CodeDigest(Code)
}

// Capability marks the capability a call is made under.
type Capability string

// NoCapability is used for platform-triggered calls such as entry
// validation, which are not gated by a user-facing capability.
const NoCapability Capability = "none"

// CallInvocation is a fully built call into a module function.
type CallInvocation struct {
	Module     ModuleIdentity `json:"module"`
	Capability Capability     `json:"capability"`
	Function   string         `json:"function"`
	Parameters []byte         `json:"parameters"` // canonical JSON
}

// ExecutionOutcome is what the execution engine returns when the module ran
// to completion. An empty Result means "no validation errors".
type ExecutionOutcome struct {
	Result string `json:"result"`
}
