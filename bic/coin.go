package bic

import (
	"fmt"

	"github.com/amadeus-network/amadeus-node/chainerr"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/kv"
)

// BalanceKey is bic:coin:balance:<pk>:<symbol> (§3 "Balances").
func BalanceKey(pk bls.PublicKey, symbol string) []byte {
	return []byte(fmt.Sprintf("bic:coin:balance:%x:%s", pk[:], symbol))
}

// EmissionAddressKey holds the contract-owner-settable emission payout
// target for a given owner pk (Coin.set_emission_address).
func EmissionAddressKey(owner bls.PublicKey) []byte {
	return []byte(fmt.Sprintf("bic:coin:emission_address:%x", owner[:]))
}

// GetBalance reads the signed flat-unit balance at (pk, symbol), 0 if unset.
func GetBalance(r *kv.Reversible, pk bls.PublicKey, symbol string) (int64, error) {
	raw, existed, err := r.Get(BalanceKey(pk, symbol))
	if err != nil || !existed {
		return 0, err
	}
	return decodeBalance(raw), nil
}

func decodeBalance(raw []byte) int64 {
	var v int64
	for _, b := range raw {
		v = v<<8 | int64(b)
	}
	return v
}

// Transfer debits from's balance and credits to's balance atomically,
// failing with attached_amount_insufficient_funds if from would go
// negative (§4.1 step 4, the built-in "Coin.transfer" dispatch target).
func Transfer(r *kv.Reversible, from, to bls.PublicKey, symbol string, amount int64) error {
	if amount <= 0 {
		return chainerr.New(chainerr.CodeInvalidAttachedAmount)
	}
	fromBal, err := GetBalance(r, from, symbol)
	if err != nil {
		return err
	}
	if fromBal-amount < 0 {
		return chainerr.New(chainerr.CodeAttachedAmountInsufficientFunds)
	}
	if _, err := r.Increment(BalanceKey(from, symbol), -amount); err != nil {
		return err
	}
	if _, err := r.Increment(BalanceKey(to, symbol), amount); err != nil {
		return err
	}
	return nil
}

// Credit adds amount to pk's balance unconditionally (emission payouts,
// gas refunds to the entry signer).
func Credit(r *kv.Reversible, pk bls.PublicKey, symbol string, amount int64) error {
	_, err := r.Increment(BalanceKey(pk, symbol), amount)
	return err
}

// Debit removes amount from pk's balance, failing if it would go negative.
func Debit(r *kv.Reversible, pk bls.PublicKey, symbol string, amount int64) error {
	bal, err := GetBalance(r, pk, symbol)
	if err != nil {
		return err
	}
	if bal-amount < 0 {
		return chainerr.New(chainerr.CodeAttachedAmountInsufficientFunds)
	}
	_, err = r.Increment(BalanceKey(pk, symbol), -amount)
	return err
}

// SetEmissionAddress lets a contract owner redirect their own emission
// payouts (Coin.set_emission_address).
func SetEmissionAddress(r *kv.Reversible, owner, target bls.PublicKey) error {
	return r.Put(EmissionAddressKey(owner), target[:])
}
