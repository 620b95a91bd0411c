package contracts

// ViolationCode is the stable string enum carried by refusals and integrity errors.
type ViolationCode string

const (
	ViolationMissingAuthority    ViolationCode = "MISSING_AUTHORITY"
	ViolationMissingRevocation   ViolationCode = "MISSING_REVOCATION"
	ViolationRevoked             ViolationCode = "REVOKED"
	ViolationMissingAnchor       ViolationCode = "MISSING_ANCHOR"
	ViolationInvalidAnchor       ViolationCode = "INVALID_ANCHOR"
	ViolationMissingProof        ViolationCode = "MISSING_PROOF"
	ViolationHamiltonianDrift    ViolationCode = "HAMILTONIAN_DRIFT"
	ViolationMissingVerification ViolationCode = "MISSING_VERIFICATION"
	ViolationLowResonance        ViolationCode = "LOW_RESONANCE"
	ViolationContinuity          ViolationCode = "CONTINUITY_VIOLATION"
	ViolationSequence            ViolationCode = "SEQUENCE_VIOLATION"
	ViolationLedgerIntegrity     ViolationCode = "LEDGER_INTEGRITY_FAILURE"
	ViolationNoContractivePath   ViolationCode = "NO_CONTRACTIVE_PATH"

	ViolationInvalidCanonicalization ViolationCode = "INVALID_CANONICALIZATION"
	ViolationEmissionGate            ViolationCode = "EMISSION_GATE_VIOLATION"
	ViolationAttestationFailure      ViolationCode = "ATTESTATION_FAILURE"
	ViolationPolicy                  ViolationCode = "POLICY_VIOLATION"
	ViolationInsufficientWitness     ViolationCode = "INSUFFICIENT_WITNESS"
)

// IsIntegrity reports whether the code signals a broken ledger rather than
// an ordinary admission refusal. Integrity codes halt the kernel.
func (c ViolationCode) IsIntegrity() bool {
	switch c {
	case ViolationContinuity, ViolationSequence, ViolationLedgerIntegrity:
		return true
	default:
		return false
	}
}

func (c ViolationCode) String() string { return string(c) }
