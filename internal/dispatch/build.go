package dispatch

import (
	"fmt"

	"github.com/roach88/admit/internal/ir"
)

// FunctionName derives the validation function for an application type.
func FunctionName(typeName string) string {
	return ir.FunctionPrefix + typeName
}

// ValidTypeName reports whether name can be used as an application type
// name: an identifier of ASCII letters, digits and underscores not starting
// with a digit.
func ValidTypeName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// BuildParameters serializes the call payload: an object with exactly the
// fields "entry" (the parsed entry content) and "ctx" (the whole validation
// data). Strings are sent unchanged; see ir.MarshalWire.
func BuildParameters(entry ir.Entry, data ir.ValidationData) ([]byte, error) {
	content, err := ir.ParseDocument(entry.Content)
	if err != nil {
		return nil, newError(ErrCodeMalformedEntry, "entry content is not a JSON document", err)
	}
	ctxVal, err := ir.ToIR(data)
	if err != nil {
		return nil, newError(ErrCodeMalformedContext, "validation data could not be serialized", err)
	}

	payload := ir.NewIRObjectFromPairs(
		ir.O("entry", content),
		ir.O("ctx", ctxVal),
	)
	params, err := ir.MarshalWire(payload)
	if err != nil {
		return nil, newError(ErrCodeMalformedEntry, "payload could not be serialized", err)
	}
	return params, nil
}

// BuildCall constructs the invocation of the validation function for
// typeName in the module owning code.
func BuildCall(code ir.CodeArtifact, typeName string, entry ir.Entry, data ir.ValidationData) (ir.CallInvocation, error) {
	if !ValidTypeName(typeName) {
		return ir.CallInvocation{}, newError(ErrCodeInvalidTypeName,
			fmt.Sprintf("type name %q is not an identifier", typeName), nil)
	}
	params, err := BuildParameters(entry, data)
	if err != nil {
		return ir.CallInvocation{}, err
	}
	return ir.CallInvocation{
		Module:     code.Module,
		Capability: ir.NoCapability,
		Function:   FunctionName(typeName),
		Parameters: params,
	}, nil
}
