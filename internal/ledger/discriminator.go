package ledger

import "crypto/sha256"

// anchorDiscriminator computes the 8-byte Anchor discriminator for the given
// namespaced preimage (e.g. "account:Game" or "global:settle_game").
func anchorDiscriminator(preimage string) [8]byte {
	sum := sha256.Sum256([]byte(preimage))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// AccountDiscriminator returns the discriminator for an Anchor account type.
func AccountDiscriminator(typeName string) [8]byte {
	return anchorDiscriminator("account:" + typeName)
}

// InstructionDiscriminator returns the discriminator for an Anchor instruction.
func InstructionDiscriminator(methodName string) [8]byte {
	return anchorDiscriminator("global:" + methodName)
}
