package bic

import (
	"fmt"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/kv"
)

// BytecodeKey is bic:contract:account:<pk>:bytecode (§4.1 step 4: presence
// of this key is what makes action.contract dispatch to the sandbox
// instead of the built-in whitelist).
func BytecodeKey(pk bls.PublicKey) []byte {
	return []byte(fmt.Sprintf("bic:contract:account:%x:bytecode", pk[:]))
}

func ownerKey(pk bls.PublicKey) []byte {
	return []byte(fmt.Sprintf("bic:contract:account:%x:owner", pk[:]))
}

// HasBytecode reports whether pk has deployed contract code.
func HasBytecode(r *kv.Reversible, pk bls.PublicKey) bool {
	_, existed, err := r.Get(BytecodeKey(pk))
	return err == nil && existed
}

// Bytecode loads pk's deployed bytecode.
func Bytecode(r *kv.Reversible, pk bls.PublicKey) ([]byte, bool, error) {
	return r.Get(BytecodeKey(pk))
}

// Deploy installs bytecode under the deployer's own pk, the
// "Contract.deploy" built-in (§4.1 step 4 whitelist).
func Deploy(r *kv.Reversible, deployer bls.PublicKey, bytecode []byte) error {
	if err := r.Put(BytecodeKey(deployer), bytecode); err != nil {
		return err
	}
	return r.Put(ownerKey(deployer), deployer[:])
}
