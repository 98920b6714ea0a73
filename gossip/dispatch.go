package gossip

import (
	"time"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/amadeus-network/amadeus-node/types"
)

// HandshakeState is a peer's position in the §4.8 handshake state machine.
type HandshakeState int

const (
	Unknown HandshakeState = iota
	Challenged
	Handshaked
)

// challengeFreshness bounds how old a "what?" challenge may be (§4.8: "must
// be within ±6s of now").
const challengeFreshness = 6 * time.Second

// PeerState tracks one remote peer's handshake progress and last-known ANR.
type PeerState struct {
	ANR            *types.ANR
	State          HandshakeState
	Challenge      int64
	ChallengeAt    time.Time
	LastPingSentAt time.Time
}

// Op is the payload's dispatch discriminant (§4.8 op table).
type Op string

const (
	OpNewPhoneWhoDis    Op = "new_phone_who_dis"
	OpWhat              Op = "what?"
	OpPing              Op = "ping"
	OpPong              Op = "pong"
	OpPeersV2           Op = "peers_v2"
	OpTxpool            Op = "txpool"
	OpEntry             Op = "entry"
	OpAttestationBulk   Op = "attestation_bulk"
	OpConsensusBulk     Op = "consensus_bulk"
	OpSol               Op = "sol"
	OpCatchupEntry      Op = "catchup_entry"
	OpCatchupTri        Op = "catchup_tri"
	OpCatchupBi         Op = "catchup_bi"
	OpCatchupAtt        Op = "catchup_attestation"
	OpSolicitEntry      Op = "solicit_entry"
	OpSpecialBusiness   Op = "special_business"
	OpSpecialBusinessReply Op = "special_business_reply"
)

// Handlers groups the collaborators a Dispatcher needs to service each op
// without this package importing txpool/state/consensus directly (those
// packages would otherwise need to import gossip back for broadcast,
// creating a cycle) — the node wiring layer (cmd/amadeus-node) supplies
// concrete closures.
type Handlers struct {
	AdmitTxs            func(packedTxs [][]byte)
	DeliverEntry         func(entry *types.Entry, consensus *types.ConsensusRecord, att *types.Attestation)
	DeliverAttestations func(atts []types.Attestation)
	DeliverConsensus    func(recs []types.ConsensusRecord)
	AcceptGiftedSol     func(sol []byte) bool
	Tips                func() (temporalHeight uint64, rootedHeight uint64)
	RandomPeers         func(n int) []types.ANR
}

// Dispatcher routes decoded gossip payloads by op (§4.8).
type Dispatcher struct {
	localSk  *bls.SecretKey
	handlers Handlers
	peers    map[bls.PublicKey]*PeerState
}

func NewDispatcher(localSk *bls.SecretKey, handlers Handlers) *Dispatcher {
	return &Dispatcher{localSk: localSk, handlers: handlers, peers: make(map[bls.PublicKey]*PeerState)}
}

func (d *Dispatcher) peerState(pk bls.PublicKey) *PeerState {
	st, ok := d.peers[pk]
	if !ok {
		st = &PeerState{}
		d.peers[pk] = st
	}
	return st
}

// Message is the decoded {op, ...args} payload shape (§4.8), kept
// deliberately loose since each op carries a different argument set.
type Message struct {
	Op        Op
	ANR       *types.ANR
	Challenge int64
	Txs       [][]byte
	Entry     *types.Entry
	Consensus *types.ConsensusRecord
	Attestation *types.Attestation
	Atts      []types.Attestation
	Records   []types.ConsensusRecord
	Sol       []byte
}

// Reply is what a Handle call wants sent back to the sender, if anything.
type Reply struct {
	Op        Op
	Challenge int64
	Signature bls.Signature
}

// Handle dispatches one decoded message from senderPk, returning an
// optional reply payload (§4.8 op table).
func (d *Dispatcher) Handle(senderPk bls.PublicKey, senderIP string, msg Message, challengeNow func() int64) (*Reply, error) {
	st := d.peerState(senderPk)

	switch msg.Op {
	case OpNewPhoneWhoDis:
		st.State = Challenged
		st.Challenge = challengeNow()
		st.ChallengeAt = time.Now()
		return &Reply{Op: OpWhat, Challenge: st.Challenge}, nil

	case OpWhat:
		// msg.ANR has already passed types.UnpackANR's signature/pop/
		// freshness checks in the UDP receive path before reaching here.
		if msg.ANR == nil {
			return nil, nil
		}
		if time.Since(st.ChallengeAt) > challengeFreshness {
			return nil, nil
		}
		msgBytes := append(append([]byte{}, senderPk[:]...), i64Bytes(msg.Challenge)...)
		sig := bls.Sign(d.localSk, h3.Sum(msgBytes)[:], bls.DSTNode)
		st.ANR = msg.ANR
		st.State = Handshaked
		return &Reply{Op: OpWhat, Signature: sig}, nil

	case OpPing:
		return &Reply{Op: OpPong}, nil

	case OpPong:
		return nil, nil

	case OpPeersV2:
		return nil, nil

	case OpTxpool:
		if d.handlers.AdmitTxs != nil {
			d.handlers.AdmitTxs(msg.Txs)
		}
		return nil, nil

	case OpEntry:
		if st.State != Handshaked {
			return nil, nil // only handshaked peers may influence consensus state (§4.8)
		}
		if d.handlers.DeliverEntry != nil {
			d.handlers.DeliverEntry(msg.Entry, msg.Consensus, msg.Attestation)
		}
		return nil, nil

	case OpAttestationBulk:
		if st.State == Handshaked && d.handlers.DeliverAttestations != nil {
			d.handlers.DeliverAttestations(msg.Atts)
		}
		return nil, nil

	case OpConsensusBulk:
		if st.State == Handshaked && d.handlers.DeliverConsensus != nil {
			d.handlers.DeliverConsensus(msg.Records)
		}
		return nil, nil

	case OpSol:
		if d.handlers.AcceptGiftedSol != nil {
			d.handlers.AcceptGiftedSol(msg.Sol)
		}
		return nil, nil

	case OpSolicitEntry, OpCatchupEntry, OpCatchupTri, OpCatchupBi, OpCatchupAtt,
		OpSpecialBusiness, OpSpecialBusinessReply:
		// Archival/coordination ops have no handler: they are accepted and
		// dropped without a reply, whatever the sender's handshake state.
		return nil, nil
	}
	return nil, nil
}

func i64Bytes(v int64) []byte {
	b := make([]byte, 8)
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
	return b
}

func (d *Dispatcher) PeerState(pk bls.PublicKey) (*PeerState, bool) {
	st, ok := d.peers[pk]
	return st, ok
}
