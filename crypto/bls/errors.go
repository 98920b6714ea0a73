package bls

import "github.com/amadeus-network/amadeus-node/chainerr"

// Errors mirror spec.md §7's crypto taxonomy (local, non-wire codes).
var (
	ErrInvalidPoint      = chainerr.New(chainerr.CodeInvalidPoint)
	ErrInvalidSignature  = chainerr.New(chainerr.CodeInvalidSignatureCr)
	ErrInvalidSeed       = chainerr.New(chainerr.CodeInvalidSeed)
	ErrVerificationFailed = chainerr.New(chainerr.CodeVerificationFailed)
	ErrZeroSizedInput    = chainerr.New(chainerr.CodeZeroSizedInput)
)
