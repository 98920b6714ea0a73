package pow

import (
	"encoding/binary"

	"github.com/amadeus-network/amadeus-node/crypto/h3"
)

// Tensor dimensions for UPOW2.tensormath (§4.9): A is 16x50240 u8, B is
// 50240x16 i8, C = A·B is a 16x16 i32 matrix (1024 bytes little-endian).
const (
	tensorRows   = 16
	tensorInner  = 50240
	tensorCols   = 16
	tensorCBytes = tensorRows * tensorCols * 4
)

// deriveMatrices expands the 240-byte preamble through a BLAKE3 XOF into
// the A (unsigned byte) and B (signed byte) operands.
func deriveMatrices(preamble []byte) (a []byte, b []byte) {
	total := tensorRows*tensorInner + tensorInner*tensorCols
	stream := h3.XOFBytes(preamble, total)
	a = stream[:tensorRows*tensorInner]
	b = stream[tensorRows*tensorInner:]
	return a, b
}

// ComputeTensor runs A·B for the given preamble and returns the 1024-byte
// little-endian i32 tensor_c payload.
func ComputeTensor(preamble []byte) []byte {
	a, b := deriveMatrices(preamble)
	out := make([]byte, tensorCBytes)
	for row := 0; row < tensorRows; row++ {
		aRow := a[row*tensorInner : (row+1)*tensorInner]
		for col := 0; col < tensorCols; col++ {
			var sum int32
			for k := 0; k < tensorInner; k++ {
				// A is unsigned u8, B is signed i8 (row-major within
				// the flat stream: B[k][col]).
				sum += int32(aRow[k]) * int32(int8(b[k*tensorCols+col]))
			}
			binary.LittleEndian.PutUint32(out[(row*tensorCols+col)*4:], uint32(sum))
		}
	}
	return out
}

// VerifyTensor recomputes C from preamble and compares against tensorC
// byte-for-byte — this is the puzzle's actual "useful work": a verifier
// redoes the same 16x50240x16 matmul the miner did (§8 scenario S6: a
// single flipped byte in tensor_c must be rejected).
func VerifyTensor(preamble, tensorC []byte) bool {
	if len(tensorC) != tensorCBytes {
		return false
	}
	want := ComputeTensor(preamble)
	return bytesEqual32(want, tensorC) && len(want) == len(tensorC)
}

// Tensormath computes a full solution hash: H3(preamble || tensor_c).
func Tensormath(preamble []byte) (tensorC []byte, hash h3.Hash) {
	tensorC = ComputeTensor(preamble)
	hash = h3.Sum(preamble, tensorC)
	return tensorC, hash
}
