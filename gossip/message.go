package gossip

import (
	"time"

	"github.com/amadeus-network/amadeus-node/canonical"
	"github.com/amadeus-network/amadeus-node/chainerr"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/types"
)

// EncodeMessage renders msg as the canonical `{op: string, ...args}` term
// §4.8/§6 specifies for the gossip payload schema, including only the
// fields that op actually carries.
func EncodeMessage(msg Message) []byte {
	entries := []canonical.MapEntry{
		{Key: canonical.Bytes([]byte("op")), Value: canonical.Bytes([]byte(msg.Op))},
	}
	if msg.ANR != nil {
		entries = append(entries, canonical.MapEntry{
			Key: canonical.Bytes([]byte("anr")), Value: canonical.Bytes(msg.ANR.Pack()),
		})
	}
	if msg.Op == OpNewPhoneWhoDis || msg.Op == OpWhat {
		entries = append(entries, canonical.MapEntry{
			Key: canonical.Bytes([]byte("challenge")), Value: canonical.Int(msg.Challenge),
		})
	}
	if len(msg.Txs) > 0 {
		txTerms := make([]canonical.Term, len(msg.Txs))
		for i, tx := range msg.Txs {
			txTerms[i] = canonical.Bytes(tx)
		}
		entries = append(entries, canonical.MapEntry{
			Key: canonical.Bytes([]byte("txs")), Value: canonical.List(txTerms...),
		})
	}
	if msg.Entry != nil {
		entries = append(entries, canonical.MapEntry{
			Key: canonical.Bytes([]byte("entry")), Value: canonical.Bytes(msg.Entry.Pack()),
		})
	}
	if msg.Consensus != nil {
		entries = append(entries, canonical.MapEntry{
			Key: canonical.Bytes([]byte("consensus")), Value: canonical.Bytes(msg.Consensus.Pack()),
		})
	}
	if msg.Attestation != nil {
		entries = append(entries, canonical.MapEntry{
			Key: canonical.Bytes([]byte("attestation")), Value: canonical.Bytes(msg.Attestation.Pack()),
		})
	}
	if len(msg.Atts) > 0 {
		attTerms := make([]canonical.Term, len(msg.Atts))
		for i, a := range msg.Atts {
			attTerms[i] = canonical.Bytes(a.Pack())
		}
		entries = append(entries, canonical.MapEntry{
			Key: canonical.Bytes([]byte("atts")), Value: canonical.List(attTerms...),
		})
	}
	if len(msg.Records) > 0 {
		recTerms := make([]canonical.Term, len(msg.Records))
		for i, r := range msg.Records {
			recTerms[i] = canonical.Bytes(r.Pack())
		}
		entries = append(entries, canonical.MapEntry{
			Key: canonical.Bytes([]byte("records")), Value: canonical.List(recTerms...),
		})
	}
	if len(msg.Sol) > 0 {
		entries = append(entries, canonical.MapEntry{
			Key: canonical.Bytes([]byte("sol")), Value: canonical.Bytes(msg.Sol),
		})
	}
	return canonical.Encode(canonical.Map(entries...))
}

// DecodeMessage reverses EncodeMessage. Field presence, not the op tag,
// drives which of Message's fields get populated, since a single op (e.g.
// "what?") carries a different argument set depending on which leg of the
// handshake it's on.
func DecodeMessage(b []byte) (Message, error) {
	term, rest, err := canonical.Decode(b)
	if err != nil || len(rest) != 0 || term.Kind != canonical.KindMap {
		return Message{}, chainerr.New(chainerr.CodeTxNotCanonical)
	}
	var msg Message
	for _, e := range term.Map {
		switch string(e.Key.Bytes) {
		case "op":
			msg.Op = Op(e.Value.Bytes)
		case "anr":
			anr, verr := types.UnpackANR(e.Value.Bytes, time.Now())
			if verr != nil {
				return Message{}, verr
			}
			msg.ANR = &anr
		case "challenge":
			msg.Challenge = e.Value.Int
		case "txs":
			msg.Txs = make([][]byte, len(e.Value.List))
			for i, item := range e.Value.List {
				msg.Txs[i] = append([]byte(nil), item.Bytes...)
			}
		case "entry":
			entry, verr := types.UnpackEntry(e.Value.Bytes)
			if verr != nil {
				return Message{}, verr
			}
			msg.Entry = entry
		case "consensus":
			rec, verr := types.UnpackConsensusRecord(e.Value.Bytes)
			if verr != nil {
				return Message{}, verr
			}
			msg.Consensus = &rec
		case "attestation":
			att, verr := types.UnpackAttestation(e.Value.Bytes)
			if verr != nil {
				return Message{}, verr
			}
			msg.Attestation = &att
		case "atts":
			msg.Atts = make([]types.Attestation, 0, len(e.Value.List))
			for _, item := range e.Value.List {
				att, verr := types.UnpackAttestation(item.Bytes)
				if verr != nil {
					return Message{}, verr
				}
				msg.Atts = append(msg.Atts, att)
			}
		case "records":
			msg.Records = make([]types.ConsensusRecord, 0, len(e.Value.List))
			for _, item := range e.Value.List {
				rec, verr := types.UnpackConsensusRecord(item.Bytes)
				if verr != nil {
					return Message{}, verr
				}
				msg.Records = append(msg.Records, rec)
			}
		case "sol":
			msg.Sol = append([]byte(nil), e.Value.Bytes...)
		}
	}
	return msg, nil
}

// EncodeReply renders a dispatcher Reply as the same `{op, ...}` message
// schema, ready to send back to the peer that prompted it.
func EncodeReply(r Reply) []byte {
	entries := []canonical.MapEntry{
		{Key: canonical.Bytes([]byte("op")), Value: canonical.Bytes([]byte(r.Op))},
		{Key: canonical.Bytes([]byte("challenge")), Value: canonical.Int(r.Challenge)},
	}
	if r.Signature != (bls.Signature{}) {
		entries = append(entries, canonical.MapEntry{
			Key: canonical.Bytes([]byte("signature")), Value: canonical.Bytes(r.Signature[:]),
		})
	}
	return canonical.Encode(canonical.Map(entries...))
}
