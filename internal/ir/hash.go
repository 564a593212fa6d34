package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainInvocation = "admit/invocation/v1"
	DomainEntry      = "admit/entry/v1"
	DomainManifest   = "admit/manifest/v1"
)

// codeDomainKey is the 32-byte BLAKE3 key for code artifact digests: the
// ASCII domain name zero-padded, so the key is readable in hex dumps.
var codeDomainKey = [32]byte{
	'a', 'd', 'm', 'i', 't', '.', 'c', 'o', 'd', 'e', 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // Null separator - CRITICAL for security
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// InvocationID computes the content-addressed ID of a validation call.
// The ID is stable across processes given the same inputs, so two dispatches
// of the same entry against the same module share an ID.
func InvocationID(call CallInvocation) (string, error) {
	obj := IRObject{
		"app":        IRString(call.Module.App),
		"module":     IRString(call.Module.Module),
		"function":   IRString(call.Function),
		"parameters": IRString(call.Parameters),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("InvocationID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainInvocation, canonical), nil
}

// EntryAddress computes the content address of an entry's raw content.
func EntryAddress(e Entry) string {
	return hashWithDomain(DomainEntry, e.Content)
}

// CodeDigest computes the keyed BLAKE3 digest of module code.
// Stored alongside code artifacts so a registry can detect changed modules
// without comparing bytes.
func CodeDigest(code []byte) string {
	hasher, err := blake3.NewKeyed(codeDomainKey[:])
	if err != nil {
		panic("ir: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(code)
	return hex.EncodeToString(hasher.Sum(nil))
}

// ManifestDigest identifies a compiled manifest: its name, and for each
// module in order its name, runtime, entry types and code digest. Two
// imports of the same manifest yield the same digest.
func ManifestDigest(m *AppManifest) (string, error) {
	modules := make(IRArray, 0, len(m.Modules))
	for _, mod := range m.Modules {
		types := make(IRArray, 0, len(mod.EntryTypes))
		for _, t := range mod.EntryTypes {
			types = append(types, IRString(t))
		}
		modules = append(modules, IRObject{
			"name":        IRString(mod.Name),
			"runtime":     IRString(mod.Runtime),
			"entry_types": types,
			"code":        IRString(CodeDigest(mod.Code)),
		})
	}

	canonical, err := MarshalCanonical(IRObject{
		"name":    IRString(m.Name),
		"modules": modules,
	})
	if err != nil {
		return "", fmt.Errorf("ManifestDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainManifest, canonical), nil
}

// MustInvocationID is like InvocationID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustInvocationID(call CallInvocation) string {
	id, err := InvocationID(call)
	if err != nil {
		panic(err)
	}
	return id
}
