// Package pow implements the deterministic per-epoch proof-of-useful-work
// puzzle of spec.md §4.9: a BLAKE3-hashed tensor-matmul solution whose
// difficulty is a function of the epoch number.
package pow

import (
	"encoding/binary"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
)

// SolSize is the packed solution size for epoch >= 156: 240-byte preamble
// plus a 1024-byte tensor_c payload (§4.9).
const SolSize = 240 + 1024

// Preamble field offsets within a Sol, per the §4.9 layout table.
const (
	offEpoch       = 0
	offSegmentVR   = 4
	offSolPk       = 36
	offPop         = 84
	offComputorPk  = 180
	offNonce       = 228
	preambleSize   = 240
	offTensor      = preambleSize
)

// Sol is a packed proof-of-useful-work solution.
type Sol [SolSize]byte

func (s *Sol) Epoch() uint32 {
	return binary.LittleEndian.Uint32(s[offEpoch : offEpoch+4])
}

func (s *Sol) SegmentVRHash() []byte   { return s[offSegmentVR : offSegmentVR+32] }
func (s *Sol) SolPk() []byte           { return s[offSolPk : offSolPk+48] }
func (s *Sol) Pop() []byte             { return s[offPop : offPop+96] }
func (s *Sol) ComputorPk() []byte      { return s[offComputorPk : offComputorPk+48] }
func (s *Sol) Nonce() []byte           { return s[offNonce : offNonce+12] }
func (s *Sol) Preamble() []byte        { return s[:preambleSize] }
func (s *Sol) TensorC() []byte         { return s[offTensor:] }

// Difficulty returns the number of required leading zero bytes in H3(sol)
// for the given epoch, and the seed length the legacy UPOW0/UPOW1 epochs
// hash over instead of the full Sol (§4.9).
func Difficulty(epoch uint32) (zeroBytes int, legacySeedLen int) {
	switch {
	case epoch >= 244:
		return 3, 0
	case epoch >= 156:
		return 2, 0
	case epoch >= 1:
		return 2, 320 // UPOW1
	default:
		return 1, 256 // UPOW0
	}
}

// hashTarget returns the bytes that difficulty is actually checked
// against: the full solution for epoch>=156, or a shorter legacy seed.
func hashTarget(epoch uint32, sol []byte) []byte {
	_, legacyLen := Difficulty(epoch)
	if legacyLen > 0 && len(sol) >= legacyLen {
		return sol[:legacyLen]
	}
	return sol
}

// MeetsDifficulty reports whether H3(sol) has the required number of
// leading zero bytes for epoch.
func MeetsDifficulty(epoch uint32, sol []byte) bool {
	zeroBytes, _ := Difficulty(epoch)
	h := h3.Sum(hashTarget(epoch, sol))
	for i := 0; i < zeroBytes; i++ {
		if h[i] != 0 {
			return false
		}
	}
	return true
}

// Verify runs full §4.9 verification for a >=156 epoch solution: hash
// difficulty, the tensor check (VerifyTensor recomputes the full matmul
// and compares), and — for epoch >= 260 — the additional binding to the
// current VR via FreivaldsE260.
func Verify(sol *Sol, vrB3 h3.Hash) bool {
	epoch := sol.Epoch()
	if !MeetsDifficulty(epoch, sol[:]) {
		return false
	}
	if epoch >= 156 {
		if !VerifyTensor(sol.Preamble(), sol.TensorC()) {
			return false
		}
	}
	if epoch >= 260 {
		if !FreivaldsE260(sol, vrB3) {
			return false
		}
	}
	return true
}

// FreivaldsE260 binds a solution to the chain's current vr_b3, preventing
// solutions mined against a stale VR from being replayed (§4.9: "epoch >=
// 260 additionally requires a Freivalds-style verification binding the
// solution to the current vr_b3"). The exact binding algorithm is left
// unspecified by spec.md beyond "binds the solution to vr_b3"; this
// implements it as segment_vr_hash == H3(vr_b3 || preamble-minus-segment),
// i.e. segment_vr_hash must be the hash a miner could only have produced
// while holding the current vr_b3.
func FreivaldsE260(sol *Sol, vrB3 h3.Hash) bool {
	rest := make([]byte, 0, preambleSize-32)
	rest = append(rest, sol[:offSegmentVR]...)
	rest = append(rest, sol[offSegmentVR+32:preambleSize]...)
	want := h3.Sum(vrB3[:], rest)
	return bytesEqual32(want[:], sol.SegmentVRHash())
}

func bytesEqual32(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ValidatePublicKeys checks the embedded sol_pk/computor_pk look like real
// BLS points, cheap structural gating before the expensive hash/tensor work.
func (s *Sol) ValidatePublicKeys() bool {
	return bls.ValidatePublicKey(s.SolPk()) && bls.ValidatePublicKey(s.ComputorPk())
}
