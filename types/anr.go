package types

import (
	"time"

	"github.com/amadeus-network/amadeus-node/canonical"
	"github.com/amadeus-network/amadeus-node/chainerr"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
)

// MaxANRSize is the packed-size ceiling from §3/§7 (oversized ANR => drop).
const MaxANRSize = 390

// FreshnessWindow is the ±10 minute bound on an ANR's timestamp (§3).
const FreshnessWindow = 10 * time.Minute

// ANR is an Active Node Record (§3): a signed (pk, ip, port, ts, version)
// used for peer discovery.
type ANR struct {
	IP4     [4]byte
	Port    uint16
	Pk      bls.PublicKey
	Pop     bls.Signature // BLS(sk, pk, DST_POP)
	Version string
	Ts      uint64 // unix seconds

	Signature bls.Signature
}

// DefaultPort is the spec's default gossip port (§3/§6).
const DefaultPort = 36969

func encodeANRBody(a ANR) []byte {
	term := canonical.Map(
		canonical.MapEntry{Key: canonical.Bytes([]byte("ip4")), Value: canonical.Bytes(a.IP4[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("port")), Value: canonical.Int(int64(a.Port))},
		canonical.MapEntry{Key: canonical.Bytes([]byte("pk")), Value: canonical.Bytes(a.Pk[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("pop")), Value: canonical.Bytes(a.Pop[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("version")), Value: canonical.Bytes([]byte(a.Version))},
		canonical.MapEntry{Key: canonical.Bytes([]byte("ts")), Value: canonical.Int(int64(a.Ts))},
	)
	return canonical.Encode(term)
}

// SignANR computes Pop (if absent) and the record signature over the
// packed body, matching §3: pop = BLS(sk, pk, DST_POP); signature covers
// the packed record under a node-identity DST.
func SignANR(sk *bls.SecretKey, a ANR) ANR {
	a.Pk = bls.PublicKeyFromSecret(sk)
	a.Pop = bls.Sign(sk, a.Pk[:], bls.DSTPop)
	body := encodeANRBody(a)
	a.Signature = bls.Sign(sk, h3.Sum(body)[:], bls.DSTNode)
	return a
}

// Pack renders the packed ANR: body + signature.
func (a ANR) Pack() []byte {
	body := encodeANRBody(a)
	term := canonical.Map(
		canonical.MapEntry{Key: canonical.Bytes([]byte("body")), Value: canonical.Bytes(body)},
		canonical.MapEntry{Key: canonical.Bytes([]byte("signature")), Value: canonical.Bytes(a.Signature[:])},
	)
	return canonical.Encode(term)
}

// UnpackANR decodes and structurally validates a packed ANR: size ceiling,
// signature, pop, and timestamp freshness (§3/§7).
func UnpackANR(packed []byte, now time.Time) (ANR, *chainerr.Error) {
	if len(packed) > MaxANRSize {
		return ANR{}, chainerr.New(chainerr.CodeBadSize)
	}
	term, rest, err := canonical.Decode(packed)
	if err != nil || len(rest) != 0 || term.Kind != canonical.KindMap {
		return ANR{}, chainerr.New(chainerr.CodeTxNotCanonical)
	}
	var body []byte
	var sig bls.Signature
	for _, e := range term.Map {
		switch string(e.Key.Bytes) {
		case "body":
			body = e.Value.Bytes
		case "signature":
			if len(e.Value.Bytes) != bls.SignatureSize {
				return ANR{}, chainerr.New(chainerr.CodeInvalidSignature)
			}
			copy(sig[:], e.Value.Bytes)
		}
	}
	bodyTerm, brest, berr := canonical.Decode(body)
	if berr != nil || len(brest) != 0 || bodyTerm.Kind != canonical.KindMap {
		return ANR{}, chainerr.New(chainerr.CodeTxNotCanonical)
	}
	var a ANR
	for _, e := range bodyTerm.Map {
		switch string(e.Key.Bytes) {
		case "ip4":
			copy(a.IP4[:], e.Value.Bytes)
		case "port":
			a.Port = uint16(e.Value.Int)
		case "pk":
			copy(a.Pk[:], e.Value.Bytes)
		case "pop":
			copy(a.Pop[:], e.Value.Bytes)
		case "version":
			a.Version = string(e.Value.Bytes)
		case "ts":
			a.Ts = uint64(e.Value.Int)
		}
	}
	a.Signature = sig

	if !bls.Verify(a.Pk, a.Signature, h3.Sum(body)[:], bls.DSTNode) {
		return ANR{}, chainerr.New(chainerr.CodeInvalidSignature)
	}
	if !bls.Verify(a.Pk, a.Pop, a.Pk[:], bls.DSTPop) {
		return ANR{}, chainerr.New(chainerr.CodeInvalidSignature)
	}
	ts := time.Unix(int64(a.Ts), 0)
	if ts.After(now.Add(FreshnessWindow)) || ts.Before(now.Add(-FreshnessWindow)) {
		return ANR{}, chainerr.New(chainerr.CodeBadSize)
	}
	return a, nil
}
