package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainInvocation = "spikeclust/invocation/v1"
	DomainCompletion = "spikeclust/completion/v1"
	DomainState      = "spikeclust/state/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// InvocationID computes the content-addressed ID of a command.
// Stable across restarts and replays given the same inputs.
func InvocationID(sessionID string, action ActionRef, args IRObject, seq int64) (string, error) {
	obj := IRObject{
		"session_id": IRString(sessionID),
		"action":     IRString(action),
		"args":       args,
		"seq":        IRInt(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("InvocationID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainInvocation, canonical), nil
}

// CompletionID computes the content-addressed ID of a command outcome.
// Links to the invocation it completes via invocationID.
func CompletionID(invocationID, outputCase string, result IRObject, seq int64) (string, error) {
	obj := IRObject{
		"invocation_id": IRString(invocationID),
		"output_case":   IRString(outputCase),
		"result":        result,
		"seq":           IRInt(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CompletionID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainCompletion, canonical), nil
}

// FieldSnapshot is the full state of one metadata field.
type FieldSnapshot struct {
	Name    string
	Default IRValue
	Values  map[ClusterID]IRValue
}

// StateHash fingerprints a partition and its metadata.
//
// Two sessions that reach the same assignment and the same stored metadata
// values produce the same hash, regardless of the path taken. Undo history is
// not part of the state.
func StateHash(assignment []ClusterID, fields []FieldSnapshot) (string, error) {
	metaObj := make(IRObject, len(fields))
	for _, f := range fields {
		values := make(IRObject, len(f.Values))
		for id, v := range f.Values {
			values[id.String()] = v
		}
		metaObj[f.Name] = IRObject{
			"default": f.Default,
			"values":  values,
		}
	}

	canonical, err := MarshalCanonical(IRObject{
		"assignment": IDsToIR(assignment),
		"metadata":   metaObj,
	})
	if err != nil {
		return "", fmt.Errorf("StateHash: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainState, canonical), nil
}

// MustInvocationID is like InvocationID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustInvocationID(sessionID string, action ActionRef, args IRObject, seq int64) string {
	id, err := InvocationID(sessionID, action, args, seq)
	if err != nil {
		panic(err)
	}
	return id
}
