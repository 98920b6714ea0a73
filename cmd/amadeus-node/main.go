// Command amadeus-node wires together the component packages (kv, state,
// vm, txpool, consensus/attestation, gossip, peer, producer) into a running
// node. Flag/file-based configuration loading is out of scope per spec.md
// §1 ("configuration loading, CLI... are external collaborators"); this
// entrypoint only reads the handful of env vars config.LoadFromEnv knows
// about and otherwise relies on config.Default.
package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/amadeus-network/amadeus-node/bic"
	"github.com/amadeus-network/amadeus-node/chain"
	"github.com/amadeus-network/amadeus-node/config"
	"github.com/amadeus-network/amadeus-node/consensus/attestation"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/amadeus-network/amadeus-node/gossip"
	"github.com/amadeus-network/amadeus-node/kv"
	"github.com/amadeus-network/amadeus-node/log"
	"github.com/amadeus-network/amadeus-node/peer"
	"github.com/amadeus-network/amadeus-node/producer"
	"github.com/amadeus-network/amadeus-node/state"
	"github.com/amadeus-network/amadeus-node/txpool"
	"github.com/amadeus-network/amadeus-node/types"
	"github.com/amadeus-network/amadeus-node/vm"
)

const moduleCacheCapacity = 256

func main() {
	logger := log.New("module", "node")
	cfg := config.LoadFromEnv()

	sk, err := loadOrCreateIdentity(cfg.WorkFolder)
	if err != nil {
		logger.Crit("failed to load node identity", "err", err)
		os.Exit(1)
	}
	localPk := bls.PublicKeyFromSecret(sk)
	logger.Info("node identity", "pk", fmt.Sprintf("%x", localPk[:8]))

	store, err := kv.OpenPebble(cfg.WorkFolder + "/db")
	if err != nil {
		logger.Crit("failed to open database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	reversible := kv.NewReversible(store)
	cache := vm.NewModuleCache(moduleCacheCapacity)
	sandbox := vm.NewSandbox(cache)
	applier := state.NewApplier(reversible, sandbox, cfg.EpochInterval)

	genesis := buildGenesis(sk, localPk)
	if err := bic.SetTrainersForHeight(reversible, 0, []bls.PublicKey{localPk}); err != nil {
		logger.Crit("failed to seed genesis trainer set", "err", err)
		os.Exit(1)
	}
	chainStore := chain.NewStore(genesis, reversible, applier)

	pool := txpool.NewPool(log.New("module", "txpool"))
	registry := peer.NewRegistry()

	node := &nodeWiring{
		cfg:      cfg,
		sk:       sk,
		applier:  applier,
		chain:    chainStore,
		pool:     pool,
		registry: registry,
		log:      logger,
		recvAtts: make(map[h3.Hash]*attestation.AggSig),
	}

	transport, err := gossip.Listen(fmt.Sprintf("%s:%d", cfg.UDPIPv4, cfg.UDPPort), sk)
	if err != nil {
		logger.Crit("failed to open gossip transport", "err", err)
		os.Exit(1)
	}
	defer transport.Close()
	node.transport = transport

	dispatcher := gossip.NewDispatcher(sk, node.handlers())
	node.dispatcher = dispatcher

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		transport.ReceiveLoop(node.onPayload)
	}()

	broadcaster := &gossipBroadcaster{transport: transport, registry: registry}
	computor := producer.NewComputor(sk, chainStore, broadcaster, pool, chainStore, cfg.EpochInterval)

	wg.Add(1)
	go func() {
		defer wg.Done()
		computor.Run(ctx, node.inSync)
	}()

	logger.Info("amadeus node started", "udp", fmt.Sprintf("%s:%d", cfg.UDPIPv4, cfg.UDPPort), "workfolder", cfg.WorkFolder)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	wg.Wait()
}

// buildGenesis constructs the height-0 entry a fresh node starts from. Real
// genesis parameters (initial balances, emission address, ...) are loaded
// from a snapshot per spec.md §6 ("SNAPSHOT_HEIGHT"), out of scope here.
func buildGenesis(sk *bls.SecretKey, signer bls.PublicKey) *types.Entry {
	e := &types.Entry{
		Header: types.EntryHeader{
			Slot:     0,
			Height:   0,
			PrevSlot: -1,
			Signer:   signer,
		},
	}
	e.Header.TxsHash = types.ComputeTxsHash(nil)
	e.Sign(sk)
	return e
}

// loadOrCreateIdentity reads the node's BLS secret key from
// <workfolder>/identity.key, generating and persisting a fresh one if
// absent. Key management beyond this is out of scope (§1).
func loadOrCreateIdentity(workFolder string) (*bls.SecretKey, error) {
	if workFolder == "" {
		workFolder = "./workdir"
	}
	if err := os.MkdirAll(workFolder, 0o700); err != nil {
		return nil, err
	}
	path := workFolder + "/identity.key"
	seed, err := os.ReadFile(path)
	if err == nil && len(seed) >= bls.SeedSize {
		return bls.GenerateKey(seed)
	}

	seed = make([]byte, bls.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, seed, 0o600); err != nil {
		return nil, err
	}
	return bls.GenerateKey(seed)
}

// nodeWiring holds the collaborators the gossip dispatch handlers close
// over; kept as a struct (rather than a closure per handler building up ad
// hoc state) so onPayload, inSync and the Handlers all share one view of
// the running node.
type nodeWiring struct {
	cfg       config.Config
	sk        *bls.SecretKey
	applier   *state.Applier
	chain     *chain.Store
	pool      *txpool.Pool
	registry  *peer.Registry
	log       log.Logger
	transport *gossip.Transport
	dispatcher *gossip.Dispatcher

	mu       sync.Mutex
	recvAtts map[h3.Hash]*attestation.AggSig
}

func (n *nodeWiring) inSync() bool {
	// A full sync-state machine (catchup_* ops racing the gossip tip) is
	// out of scope; this node always considers itself caught up once its
	// genesis/current entry exists.
	return n.chain.CurrentEntry() != nil
}

// freshChallenge draws the random int64 challengeNow supplies to
// Dispatcher.Handle for a new "new_phone_who_dis" handshake (§4.8).
func freshChallenge() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b[:]) &^ (1 << 63))
}

func (n *nodeWiring) onPayload(senderPk bls.PublicKey, src *net.UDPAddr, payload []byte) {
	msg, err := gossip.DecodeMessage(payload)
	if err != nil {
		n.log.Debug("dropped malformed gossip payload", "from", fmt.Sprintf("%x", senderPk[:8]), "err", err)
		return
	}
	reply, err := n.dispatcher.Handle(senderPk, src.String(), msg, freshChallenge)
	if err != nil {
		n.log.Debug("dispatch failed", "op", msg.Op, "err", err)
		return
	}
	if reply != nil {
		if err := n.transport.Send(src, gossip.EncodeReply(*reply)); err != nil {
			n.log.Debug("failed to send gossip reply", "op", reply.Op, "err", err)
		}
	}
}

func (n *nodeWiring) handlers() gossip.Handlers {
	return gossip.Handlers{
		AdmitTxs: func(packedTxs [][]byte) {
			n.pool.Insert(packedTxs)
		},
		DeliverEntry: func(entry *types.Entry, consensusRec *types.ConsensusRecord, att *types.Attestation) {
			n.handleEntry(entry, consensusRec, att)
		},
		DeliverAttestations: func(atts []types.Attestation) {
			for _, a := range atts {
				n.mergeAttestation(a)
			}
		},
		DeliverConsensus: func(recs []types.ConsensusRecord) {
			// Remote consensus records are already-aggregated AggSigs;
			// recorded as-is for §4.4's quorum scoring.
			for _, rec := range recs {
				n.log.Debug("consensus record received", "entry_hash", fmt.Sprintf("%x", rec.EntryHash[:8]))
			}
		},
		AcceptGiftedSol: func(sol []byte) bool {
			return n.pool.AddGiftedSol(sol, n.chain.ChainEpoch())
		},
		Tips: func() (uint64, uint64) {
			return n.chain.Tips()
		},
		RandomPeers: func(count int) []types.ANR {
			return n.registry.RandomSample(count)
		},
	}
}

func (n *nodeWiring) handleEntry(entry *types.Entry, consensusRec *types.ConsensusRecord, att *types.Attestation) {
	if entry == nil {
		return
	}
	if verr := entry.ValidateShape(n.cfg.TxSize); verr != nil {
		n.log.Warn("rejected entry: bad shape", "err", verr)
		return
	}
	cur := n.chain.CurrentEntry()
	if cur != nil {
		if verr := types.ValidateNext(cur, entry); verr != nil {
			n.log.Warn("rejected entry: invalid chain link", "err", verr)
			return
		}
	}

	nextTrainers := n.chain.TrainersForHeight(entry.Header.Height + 1)
	var localSk *bls.SecretKey
	localPk := bls.PublicKeyFromSecret(n.sk)
	for _, t := range nextTrainers {
		if t == localPk {
			localSk = n.sk
			break
		}
	}

	result, err := n.applier.Apply(entry, nextTrainers, localSk)
	if err != nil {
		n.log.Warn("apply_entry failed", "err", err)
		return
	}
	if err := n.chain.Insert(entry); err != nil {
		n.log.Warn("failed to insert applied entry", "err", err)
		return
	}
	n.chain.AdvanceRootedTip()

	if result.Attestation != nil {
		n.mergeAttestation(*result.Attestation)
	}
	if att != nil {
		n.mergeAttestation(*att)
	}
	if consensusRec != nil {
		n.log.Debug("entry carried consensus record", "entry_hash", fmt.Sprintf("%x", consensusRec.EntryHash[:8]))
	}
}

// mergeAttestation folds one attestation into the running AggSig for its
// entry hash (§4.4).
func (n *nodeWiring) mergeAttestation(a types.Attestation) {
	if !a.Verify() {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	entry, ok := n.chain.Get(a.EntryHash)
	if !ok {
		return
	}
	trainers := attestation.TrainerSet(n.chain.TrainersForHeight(entry.Header.Height))
	existing, ok := n.recvAtts[a.EntryHash]
	if !ok {
		agg, err := attestation.New(trainers, a.Signer, a.Signature)
		if err != nil {
			n.log.Debug("failed to start aggregate signature", "err", err)
			return
		}
		n.recvAtts[a.EntryHash] = agg
		return
	}
	if err := existing.Add(trainers, a.Signer, a.Signature); err != nil {
		n.log.Debug("failed to fold attestation into aggregate", "err", err)
	}
}

// gossipBroadcaster adapts the gossip transport + peer registry into
// producer.Broadcaster: fan out to a random sample of known peers (§4.8's
// gossip topology, rather than a full mesh broadcast).
type gossipBroadcaster struct {
	transport *gossip.Transport
	registry  *peer.Registry
}

const fanout = 8

func (b *gossipBroadcaster) broadcast(payload []byte) {
	for _, anr := range b.registry.RandomSample(fanout) {
		addr := &net.UDPAddr{IP: net.IPv4(anr.IP4[0], anr.IP4[1], anr.IP4[2], anr.IP4[3]), Port: int(anr.Port)}
		_ = b.transport.Send(addr, payload)
	}
}

func (b *gossipBroadcaster) BroadcastTx(packed []byte) {
	b.broadcast(gossip.EncodeMessage(gossip.Message{Op: gossip.OpTxpool, Txs: [][]byte{packed}}))
}

func (b *gossipBroadcaster) BroadcastSol(sol []byte) {
	b.broadcast(gossip.EncodeMessage(gossip.Message{Op: gossip.OpSol, Sol: sol}))
}

func (b *gossipBroadcaster) BroadcastEntry(entry *types.Entry) {
	b.broadcast(gossip.EncodeMessage(gossip.Message{Op: gossip.OpEntry, Entry: entry}))
}
