package dispatch

import "github.com/roach88/admit/internal/ir"

// Classify decides whether an entry type needs an application validator.
//
// It returns either a verdict that short-circuits the pipeline, or the
// application type name to resolve (verdict nil). The switch is exhaustive
// over the sealed EntryType; any other value, including nil, falls to the
// default arm and is NotImplemented.
func Classify(t ir.EntryType) (typeName string, verdict ir.CallbackResult) {
	switch v := t.(type) {
	case ir.SystemType:
		if v.Kind == ir.SystemAppDescriptor {
			return "", ir.Pass{}
		}
		return "", ir.NotImplemented{}
	case ir.AppType:
		return v.Name, nil
	case ir.UnknownType:
		return "", ir.NotImplemented{}
	default:
		return "", ir.NotImplemented{}
	}
}
