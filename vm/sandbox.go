package vm

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/amadeus-network/amadeus-node/bic"
	"github.com/amadeus-network/amadeus-node/chainerr"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/amadeus-network/amadeus-node/kv"
	"github.com/amadeus-network/amadeus-node/log"
	"github.com/amadeus-network/amadeus-node/metrics"
	"github.com/amadeus-network/amadeus-node/state"
	"github.com/wasmerio/wasmer-go/wasmer"
)

const (
	initialPages     = 8
	gasPerOp         = 10   // default rate, §4.6
	logCostPerByte   = 1000 // import_log cost
	kvReadBase       = 100  // storage_kv_get base multiplier
	kvWriteBase      = 1000 // storage_kv_put/increment/delete/clear base multiplier
	hostCallDeadline = 6 * time.Second

	maxAccountBytes = 64 // account identifiers: a 48-byte pk or a short built-in name
	maxSymbolBytes  = 32
)

// envLayout fixes the byte offsets §4.6's import table describes as
// "fixed offsets holding length-prefixed byte strings": each region is a
// 4-byte big-endian length followed by up to its max size of data, laid
// out back to back starting at address 0 of the instance's own linear
// memory, written once per call before the entry function runs.
type envLayout struct {
	seed, entrySigner, entryPrevHash, entryVR, entryDR, txSigner,
	accountCurrent, accountCaller, accountOrigin,
	attachedSymbol, attachedAmount int32
	end int32
}

func buildEnvLayout() envLayout {
	var l envLayout
	cur := int32(0)
	next := func(maxLen int) int32 {
		off := cur
		cur += 4 + int32(maxLen)
		return off
	}
	l.seed = next(h3.Size)
	l.entrySigner = next(bls.PublicKeySize)
	l.entryPrevHash = next(h3.Size)
	l.entryVR = next(96)
	l.entryDR = next(h3.Size)
	l.txSigner = next(bls.PublicKeySize)
	l.accountCurrent = next(maxAccountBytes)
	l.accountCaller = next(bls.PublicKeySize)
	l.accountOrigin = next(bls.PublicKeySize)
	l.attachedSymbol = next(maxSymbolBytes)
	l.attachedAmount = next(8)
	l.end = cur
	return l
}

var envData = buildEnvLayout()

// Sandbox executes deployed contract bytecode under the import surface of
// §4.6. It implements state.Sandbox so the apply_entry orchestrator can
// dispatch to it without importing package vm directly.
type Sandbox struct {
	cache *ModuleCache
	log   log.Logger
}

func NewSandbox(cache *ModuleCache) *Sandbox {
	return &Sandbox{cache: cache, log: log.New("module", "vm")}
}

// callCtx threads per-call mutable state (gas, logs, return value, staged
// attachment, readonly flag) into the host-import closures, which wasmer
// calls back into synchronously during Instance execution.
type callCtx struct {
	r         *kv.Reversible
	env       *state.Env
	memory    *wasmer.Memory
	gasLeft   int64
	logs      [][]byte
	returnVal []byte
	returned  bool
	readonly  bool
	account   string // current c:<account> prefix
	stagedSym []byte
	stagedAmt uint64
}

func (c *callCtx) chargeGas(units int64) error {
	c.gasLeft -= units
	if c.gasLeft < 0 {
		return chainerr.New(chainerr.CodeInvalidMemory) // out of gas, closest structural code available
	}
	return nil
}

func (c *callCtx) readMem(ptr, length int32) []byte {
	data := c.memory.Data()
	if ptr < 0 || length < 0 || int(ptr)+int(length) > len(data) {
		return nil
	}
	out := make([]byte, length)
	copy(out, data[ptr:int(ptr)+int(length)])
	return out
}

func (c *callCtx) writeMem(ptr int32, b []byte) {
	data := c.memory.Data()
	if ptr < 0 || int(ptr)+len(b) > len(data) {
		return
	}
	copy(data[ptr:], b)
}

func storageKey(account, rawKey string) []byte {
	return []byte(fmt.Sprintf("c:%s:%s", account, rawKey))
}

// writeLengthPrefixed writes a 4-byte big-endian length followed by b
// (truncated to maxLen) at off in the instance's linear memory.
func (c *callCtx) writeLengthPrefixed(off int32, b []byte, maxLen int) {
	if len(b) > maxLen {
		b = b[:maxLen]
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	c.writeMem(off, lenBuf[:])
	c.writeMem(off+4, b)
}

// writeEnvData populates the fixed §4.6 environment-data region ahead of
// invoking the entry function, so bytecode reading seed_ptr/entry_*_ptr/
// tx_signer_ptr/account_*_ptr/attached_*_ptr sees this call's chain/tx/
// attachment context.
func (c *callCtx) writeEnvData() {
	env := c.env
	c.writeLengthPrefixed(envData.seed, env.Seed[:], h3.Size)
	c.writeLengthPrefixed(envData.entrySigner, env.EntrySigner[:], bls.PublicKeySize)
	c.writeLengthPrefixed(envData.entryPrevHash, env.EntryPrevHash[:], h3.Size)
	c.writeLengthPrefixed(envData.entryVR, env.VR[:], 96)
	c.writeLengthPrefixed(envData.entryDR, env.DR[:], h3.Size)
	c.writeLengthPrefixed(envData.txSigner, env.TxSigner[:], bls.PublicKeySize)
	c.writeLengthPrefixed(envData.accountCurrent, env.AccountCurrent, maxAccountBytes)
	c.writeLengthPrefixed(envData.accountCaller, env.AccountCaller[:], bls.PublicKeySize)
	c.writeLengthPrefixed(envData.accountOrigin, env.AccountOrigin[:], bls.PublicKeySize)
	c.writeLengthPrefixed(envData.attachedSymbol, env.AttachedSymbol, maxSymbolBytes)
	var amtBuf [8]byte
	binary.BigEndian.PutUint64(amtBuf[:], env.AttachedAmount)
	c.writeLengthPrefixed(envData.attachedAmount, amtBuf[:], 8)
}

// nonceLow64 truncates a 128-bit big-endian nonce to the low 64 bits, the
// width tx_nonce's i64 global carries it in (§4.6).
func nonceLow64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b[len(b)-8:]))
}

// Call compiles (or reuses a cached compilation of) bytecode, instantiates
// it with the fixed import surface, and invokes function, passing each
// element of args as one i32 parameter holding its length; the argument
// bytes themselves are not copied into the instance's memory. It
// implements state.Sandbox.
func (s *Sandbox) Call(r *kv.Reversible, env *state.Env, bytecode []byte, function string, args [][]byte) ([]byte, int64, error) {
	mod, err := s.cache.Compile(bytecode)
	if err != nil {
		return nil, 0, chainerr.Wrap(chainerr.CodeInvalidInstance, err)
	}
	store := wasmer.NewStore(s.cache.engine)

	cc := &callCtx{r: r, env: env, gasLeft: env.GasBudget, account: fmt.Sprintf("%x", env.AccountCurrent)}

	importObject := s.buildImports(store, cc)

	instance, err := wasmer.NewInstance(mod, importObject)
	if err != nil {
		return nil, 0, chainerr.Wrap(chainerr.CodeInvalidInstance, err)
	}
	defer instance.Close()

	memory, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, 0, chainerr.Wrap(chainerr.CodeInvalidMemory, err)
	}
	cc.memory = memory
	cc.writeEnvData()

	fn, err := instance.Exports.GetFunction(function)
	if err != nil {
		return nil, 0, chainerr.New(chainerr.CodeInvalidFunction)
	}

	ctx, cancel := context.WithTimeout(context.Background(), hostCallDeadline)
	defer cancel()

	done := make(chan struct{})
	var callErr error
	go func() {
		defer close(done)
		wasmArgs := make([]interface{}, len(args))
		for i, a := range args {
			wasmArgs[i] = int32(len(a))
		}
		_, callErr = fn(wasmArgs...)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, env.GasBudget - cc.gasLeft, chainerr.New(chainerr.CodeNoHostCallback)
	}

	used := env.GasBudget - cc.gasLeft
	metrics.NewCounter("vm.gas_used").Inc(used)

	if callErr != nil {
		return nil, used, chainerr.Wrap(chainerr.CodeAbort, callErr)
	}
	return cc.returnVal, used, nil
}

// buildImports registers the fixed §4.6 host surface under the "env" module
// name, the convention wasmer-go examples use for a single flat namespace.
func (s *Sandbox) buildImports(store *wasmer.Store, cc *callCtx) *wasmer.ImportObject {
	importObject := wasmer.NewImportObject()

	i32 := wasmer.I32
	fnType := func(in, out []wasmer.ValueKind) *wasmer.FunctionType {
		return wasmer.NewFunctionType(wasmer.NewValueTypes(in...), wasmer.NewValueTypes(out...))
	}

	importLog := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32}, nil),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			ptr, length := args[0].I32(), args[1].I32()
			if err := cc.chargeGas(logCostPerByte * int64(length)); err != nil {
				return nil, err
			}
			cc.logs = append(cc.logs, cc.readMem(ptr, length))
			return nil, nil
		})

	importReturnValue := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32}, nil),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			ptr, length := args[0].I32(), args[1].I32()
			cc.returnVal = cc.readMem(ptr, length)
			cc.returned = true
			return nil, nil
		})

	importAttach := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32, i32, i32}, nil),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			symPtr, symLen, amtPtr, amtLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
			cc.stagedSym = cc.readMem(symPtr, symLen)
			amtBytes := cc.readMem(amtPtr, amtLen)
			var amt uint64
			for _, b := range amtBytes {
				amt = amt<<8 | uint64(b)
			}
			cc.stagedAmt = amt
			return nil, nil
		})

	kvGet := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32, i32}, []wasmer.ValueKind{i32}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			keyPtr, keyLen, outPtr := args[0].I32(), args[1].I32(), args[2].I32()
			key := cc.readMem(keyPtr, keyLen)
			if err := cc.chargeGas(kvReadBase * int64(48+len(key))); err != nil {
				return nil, err
			}
			val, existed, err := cc.r.Get(storageKey(cc.account, string(key)))
			if err != nil || !existed {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			cc.writeMem(outPtr, val)
			return []wasmer.Value{wasmer.NewI32(int32(len(val)))}, nil
		})

	kvExists := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i32}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			keyPtr, keyLen := args[0].I32(), args[1].I32()
			key := cc.readMem(keyPtr, keyLen)
			if err := cc.chargeGas(kvReadBase * int64(48+len(key))); err != nil {
				return nil, err
			}
			_, existed, err := cc.r.Get(storageKey(cc.account, string(key)))
			if err != nil {
				return nil, err
			}
			if existed {
				return []wasmer.Value{wasmer.NewI32(1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		})

	kvPut := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32, i32, i32}, nil),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if cc.readonly {
				return nil, chainerr.New(chainerr.CodeReadOnly)
			}
			keyPtr, keyLen, valPtr, valLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
			key := cc.readMem(keyPtr, keyLen)
			val := cc.readMem(valPtr, valLen)
			if err := cc.chargeGas(kvWriteBase * int64(48+len(key)+len(val))); err != nil {
				return nil, err
			}
			return nil, cc.r.Put(storageKey(cc.account, string(key)), val)
		})

	kvIncrement := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32, wasmer.I64}, []wasmer.ValueKind{wasmer.I64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if cc.readonly {
				return nil, chainerr.New(chainerr.CodeReadOnly)
			}
			keyPtr, keyLen, delta := args[0].I32(), args[1].I32(), args[2].I64()
			key := cc.readMem(keyPtr, keyLen)
			if err := cc.chargeGas(kvWriteBase * int64(48+len(key))); err != nil {
				return nil, err
			}
			next, err := cc.r.Increment(storageKey(cc.account, string(key)), delta)
			if err != nil {
				return nil, err
			}
			return []wasmer.Value{wasmer.NewI64(next)}, nil
		})

	kvDelete := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32}, nil),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if cc.readonly {
				return nil, chainerr.New(chainerr.CodeReadOnly)
			}
			keyPtr, keyLen := args[0].I32(), args[1].I32()
			key := cc.readMem(keyPtr, keyLen)
			if err := cc.chargeGas(kvWriteBase * int64(48+len(key))); err != nil {
				return nil, err
			}
			return nil, cc.r.Delete(storageKey(cc.account, string(key)))
		})

	kvClear := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32}, nil),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if cc.readonly {
				return nil, chainerr.New(chainerr.CodeReadOnly)
			}
			prefixPtr, prefixLen := args[0].I32(), args[1].I32()
			prefix := storageKey(cc.account, string(cc.readMem(prefixPtr, prefixLen)))
			it, err := cc.r.Iterator(prefix, kv.PrefixUpperBound(prefix))
			if err != nil {
				return nil, err
			}
			defer it.Close()
			var keys [][]byte
			for ok := it.First(); ok; ok = it.Next() {
				keys = append(keys, append([]byte(nil), it.Key()...))
			}
			for _, k := range keys {
				if err := cc.chargeGas(kvWriteBase * int64(len(k))); err != nil {
					return nil, err
				}
				if err := cc.r.Delete(k); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})

	kvGetNext := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32, i32}, []wasmer.ValueKind{i32}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			keyPtr, keyLen, outPtr := args[0].I32(), args[1].I32(), args[2].I32()
			key := storageKey(cc.account, string(cc.readMem(keyPtr, keyLen)))
			prefix := []byte(fmt.Sprintf("c:%s:", cc.account))
			it, err := cc.r.Iterator(key, kv.PrefixUpperBound(prefix))
			if err != nil {
				return nil, err
			}
			defer it.Close()
			for ok := it.First(); ok; ok = it.Next() {
				if string(it.Key()) == string(key) {
					continue
				}
				val := it.Value()
				cc.writeMem(outPtr, val)
				return []wasmer.Value{wasmer.NewI32(int32(len(val)))}, nil
			}
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		})

	kvGetPrev := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32, i32}, []wasmer.ValueKind{i32}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			keyPtr, keyLen, outPtr := args[0].I32(), args[1].I32(), args[2].I32()
			key := storageKey(cc.account, string(cc.readMem(keyPtr, keyLen)))
			prefix := []byte(fmt.Sprintf("c:%s:", cc.account))
			it, err := cc.r.Iterator(prefix, key)
			if err != nil {
				return nil, err
			}
			defer it.Close()
			var lastVal []byte
			found := false
			for ok := it.First(); ok; ok = it.Next() {
				lastVal = append([]byte(nil), it.Value()...)
				found = true
			}
			if !found {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			cc.writeMem(outPtr, lastVal)
			return []wasmer.Value{wasmer.NewI32(int32(len(lastVal)))}, nil
		})

	abort := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32, i32, i32}, nil),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return nil, chainerr.New(chainerr.CodeAbort)
		})

	ptrGlobal := func(offset int32) *wasmer.Global {
		return wasmer.NewGlobal(store, wasmer.NewGlobalType(wasmer.NewValueType(i32), wasmer.CONST), wasmer.NewI32(offset))
	}
	i64Global := func(v int64) *wasmer.Global {
		return wasmer.NewGlobal(store, wasmer.NewGlobalType(wasmer.NewValueType(wasmer.I64), wasmer.CONST), wasmer.NewI64(v))
	}

	exports := map[string]wasmer.IntoExtern{
		"import_log":           importLog,
		"import_return_value":  importReturnValue,
		"import_attach":        importAttach,
		"storage_kv_get":       kvGet,
		"storage_kv_exists":    kvExists,
		"storage_kv_put":       kvPut,
		"storage_kv_increment": kvIncrement,
		"storage_kv_delete":    kvDelete,
		"storage_kv_clear":     kvClear,
		"storage_kv_get_next":  kvGetNext,
		"storage_kv_get_prev":  kvGetPrev,
		"abort":                abort,

		"seed_ptr":            ptrGlobal(envData.seed),
		"entry_signer_ptr":    ptrGlobal(envData.entrySigner),
		"entry_prev_hash_ptr": ptrGlobal(envData.entryPrevHash),
		"entry_vr_ptr":        ptrGlobal(envData.entryVR),
		"entry_dr_ptr":        ptrGlobal(envData.entryDR),
		"tx_signer_ptr":       ptrGlobal(envData.txSigner),
		"account_current_ptr": ptrGlobal(envData.accountCurrent),
		"account_caller_ptr":  ptrGlobal(envData.accountCaller),
		"account_origin_ptr":  ptrGlobal(envData.accountOrigin),
		"attached_symbol_ptr": ptrGlobal(envData.attachedSymbol),
		"attached_amount_ptr": ptrGlobal(envData.attachedAmount),

		"entry_slot":      i64Global(int64(cc.env.Slot)),
		"entry_prev_slot": i64Global(cc.env.PrevSlot),
		"entry_height":    i64Global(int64(cc.env.Height)),
		"entry_epoch":     i64Global(int64(cc.env.Epoch)),
		"tx_nonce":        i64Global(nonceLow64(cc.env.TxNonce.Bytes())),
	}

	for n := 0; n <= 4; n++ {
		exports[fmt.Sprintf("call_%d", n)] = s.makeXCC(store, cc, n)
	}

	importObject.Register("env", exports)

	return importObject
}

// makeXCC builds call_N: a reentrant cross-contract call with n arguments.
// Signature: (module_ptr,module_len, function_ptr,function_len,
// [arg_ptr,arg_len]*n, out_ptr) -> i32. Writes the callee's return value at
// out_ptr and returns its length, or -1 (xcc_failed) if the target has no
// bytecode or the nested call errors; caller's gas is charged for whatever
// the callee actually used.
func (s *Sandbox) makeXCC(store *wasmer.Store, cc *callCtx, n int) *wasmer.Function {
	i32 := wasmer.I32
	params := []wasmer.ValueKind{i32, i32, i32, i32}
	for i := 0; i < n; i++ {
		params = append(params, i32, i32)
	}
	params = append(params, i32)
	fnType := wasmer.NewFunctionType(wasmer.NewValueTypes(params...), wasmer.NewValueTypes(i32))

	return wasmer.NewFunction(store, fnType, func(args []wasmer.Value) ([]wasmer.Value, error) {
		idx := 0
		next := func() int32 {
			v := args[idx].I32()
			idx++
			return v
		}
		modPtr, modLen := next(), next()
		fnPtr, fnLen := next(), next()
		callArgs := make([][]byte, n)
		for i := 0; i < n; i++ {
			argPtr, argLen := next(), next()
			callArgs[i] = cc.readMem(argPtr, argLen)
		}
		outPtr := next()

		module := cc.readMem(modPtr, modLen)
		function := string(cc.readMem(fnPtr, fnLen))

		if len(module) != bls.PublicKeySize {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		var target bls.PublicKey
		copy(target[:], module)
		if !bic.HasBytecode(cc.r, target) {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		bytecode, _, err := bic.Bytecode(cc.r, target)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}

		var caller bls.PublicKey
		if len(cc.env.AccountCurrent) == bls.PublicKeySize {
			copy(caller[:], cc.env.AccountCurrent)
		}
		subEnv := *cc.env
		subEnv.AccountCaller = caller
		subEnv.AccountCurrent = append([]byte(nil), module...)
		subEnv.GasBudget = cc.gasLeft

		ret, used, callErr := s.Call(cc.r, &subEnv, bytecode, function, callArgs)
		cc.gasLeft -= used
		if callErr != nil || cc.gasLeft < 0 {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		cc.writeMem(outPtr, ret)
		return []wasmer.Value{wasmer.NewI32(int32(len(ret)))}, nil
	})
}
