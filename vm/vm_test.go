package vm

import (
	"encoding/binary"
	"testing"

	"github.com/amadeus-network/amadeus-node/bic"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/amadeus-network/amadeus-node/kv"
	"github.com/amadeus-network/amadeus-node/state"
	"github.com/stretchr/testify/require"
)

func TestModuleCacheRejectsInvalidBytecode(t *testing.T) {
	cache := NewModuleCache(4)
	_, err := cache.Compile([]byte("not a wasm module"))
	require.Error(t, err)
}

func TestModuleCacheMemoizesCompilation(t *testing.T) {
	// A minimal valid WASM module: header + empty sections, no exports.
	// \0asm, version 1, no further sections — the smallest byte sequence
	// wasmer will accept as a module.
	minimal := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	cache := NewModuleCache(4)
	mod1, err := cache.Compile(minimal)
	require.NoError(t, err)
	mod2, err := cache.Compile(minimal)
	require.NoError(t, err)
	require.Same(t, mod1, mod2)
}

// noopModule exports "memory" and a "run" function with an empty body: the
// smallest module that exercises Sandbox.Call's full instantiate/invoke
// path (as opposed to ModuleCache.Compile alone, which never reaches
// buildImports or writeEnvData).
var noopModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type section: type0 () -> ()
	0x03, 0x02, 0x01, 0x00, // function section: func0 uses type0
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page, no max
	0x07, 0x10, 0x02, // export section: 2 exports
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // "memory" -> memory 0
	0x03, 'r', 'u', 'n', 0x00, 0x00, // "run" -> func 0
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b, // code section: func0 body is just `end`
}

// envReaderModule imports the seed_ptr global and import_return_value, and
// reports the fixed-offset, length-prefixed seed region back to the host:
// proof that writeEnvData actually lands in the instance's memory at the
// offset the seed_ptr global advertises, not just that the global exists.
var envReaderModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type section: type0 ()->(), type1 (i32,i32)->()
	0x01, 0x09, 0x02, 0x60, 0x00, 0x00, 0x60, 0x02, 0x7f, 0x7f, 0x00,
	// import section: func "env"."import_return_value" (type1),
	// global "env"."seed_ptr" (i32 const), global "env"."tx_nonce" (i64 const)
	0x02, 0x3b, 0x03,
	0x03, 'e', 'n', 'v', 0x13, 'i', 'm', 'p', 'o', 'r', 't', '_', 'r', 'e', 't', 'u', 'r', 'n', '_', 'v', 'a', 'l', 'u', 'e', 0x00, 0x01,
	0x03, 'e', 'n', 'v', 0x08, 's', 'e', 'e', 'd', '_', 'p', 't', 'r', 0x03, 0x7f, 0x00,
	0x03, 'e', 'n', 'v', 0x08, 't', 'x', '_', 'n', 'o', 'n', 'c', 'e', 0x03, 0x7e, 0x00,
	// function section: func1 ("run", local index after the one func import) uses type0
	0x03, 0x02, 0x01, 0x00,
	// memory section
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export section: "memory", "run" -> func index 1
	0x07, 0x10, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x03, 'r', 'u', 'n', 0x00, 0x01,
	// code section: run() { call import_return_value(seed_ptr_global, 36) }
	0x0a, 0x0a, 0x01, 0x08, 0x00,
	0x23, 0x00, // global.get 0 (seed_ptr)
	0x41, 0x24, // i32.const 36
	0x10, 0x00, // call 0 (import_return_value)
	0x0b, // end
}

func testEnv() *state.Env {
	seed := h3.Sum([]byte("vm sandbox test seed"))
	return &state.Env{
		Slot:      7,
		PrevSlot:  6,
		Height:    7,
		Epoch:     0,
		GasBudget: 1_000_000,
		Seed:      seed,
	}
}

func TestSandboxCallRunsExportedFunction(t *testing.T) {
	store := kv.NewMemStore()
	r := kv.NewReversible(store)
	sandbox := NewSandbox(NewModuleCache(4))

	ret, used, err := sandbox.Call(r, testEnv(), noopModule, "run", nil)
	require.NoError(t, err)
	require.Nil(t, ret)
	require.GreaterOrEqual(t, used, int64(0))
}

func TestSandboxCallExposesSeedViaEnvironmentData(t *testing.T) {
	store := kv.NewMemStore()
	r := kv.NewReversible(store)
	sandbox := NewSandbox(NewModuleCache(4))

	env := testEnv()
	ret, _, err := sandbox.Call(r, env, envReaderModule, "run", nil)
	require.NoError(t, err)
	require.Len(t, ret, 36)
	require.Equal(t, uint32(h3.Size), binary.BigEndian.Uint32(ret[:4]))
	require.Equal(t, env.Seed[:], ret[4:])
}

// buildCallerModule assembles (at test time, since the target's pubkey is
// only known once it's generated) a module that imports call_0 and
// import_return_value, and on "run" calls call_0(target, "run", out_ptr),
// then reports the callee's return value back to the host. The target
// pubkey and "run" function name are spliced in as a data segment placed
// past the fixed environment-data region (§4.6), so writeEnvData can't
// clobber them.
func buildCallerModule(target bls.PublicKey) []byte {
	const dataOffset = 600 // well past envData.end
	fnName := "run"

	var dataSeg []byte
	dataSeg = append(dataSeg, target[:]...)
	dataSeg = append(dataSeg, fnName...)

	modPtr := int32(dataOffset)
	modLen := int32(len(target))
	fnPtr := modPtr + modLen
	fnLen := int32(len(fnName))
	outPtr := int32(dataOffset + len(dataSeg) + 16)

	var m []byte
	m = append(m, 0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00)

	// type section: type0 ()->(), type1 call_0's sig (5 x i32)->i32,
	// type2 import_return_value's sig (i32,i32)->()
	m = append(m, 0x01, 0x12, 0x03,
		0x60, 0x00, 0x00,
		0x60, 0x05, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f,
		0x60, 0x02, 0x7f, 0x7f, 0x00)

	// import section: func "env"."call_0" (type1), func "env"."import_return_value" (type2)
	m = append(m, 0x02, 0x28, 0x02,
		0x03, 'e', 'n', 'v', 0x06, 'c', 'a', 'l', 'l', '_', '0', 0x00, 0x01,
		0x03, 'e', 'n', 'v', 0x13, 'i', 'm', 'p', 'o', 'r', 't', '_', 'r', 'e', 't', 'u', 'r', 'n', '_', 'v', 'a', 'l', 'u', 'e', 0x00, 0x02)

	// function section: func2 ("run", after the two func imports) uses type0
	m = append(m, 0x03, 0x02, 0x01, 0x00)

	// memory section
	m = append(m, 0x05, 0x03, 0x01, 0x00, 0x01)

	// export section: "memory", "run" -> func index 2
	m = append(m, 0x07, 0x10, 0x02,
		0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
		0x03, 'r', 'u', 'n', 0x00, 0x02)

	// code section: run() {
	//   local0 = call_0(modPtr, modLen, fnPtr, fnLen, outPtr)
	//   import_return_value(outPtr, local0)
	// }
	body := []byte{0x01, 0x01, 0x7f} // 1 local group: 1 x i32
	body = append(body, i32ConstLEB(modPtr)...)
	body = append(body, i32ConstLEB(modLen)...)
	body = append(body, i32ConstLEB(fnPtr)...)
	body = append(body, i32ConstLEB(fnLen)...)
	body = append(body, i32ConstLEB(outPtr)...)
	body = append(body, 0x10, 0x00) // call 0 (call_0)
	body = append(body, 0x21, 0x00) // local.set 0
	body = append(body, i32ConstLEB(outPtr)...)
	body = append(body, 0x20, 0x00) // local.get 0
	body = append(body, 0x10, 0x01) // call 1 (import_return_value)
	body = append(body, 0x0b)       // end

	var code []byte
	code = append(code, byte(len(body)))
	code = append(code, body...)
	m = append(m, 0x0a)
	m = append(m, leb128U(uint32(1+len(code)))...)
	m = append(m, 0x01)
	m = append(m, code...)

	// data section: target pk + "run" at dataOffset
	var dataEntry []byte
	dataEntry = append(dataEntry, 0x00) // memory index 0
	dataEntry = append(dataEntry, i32ConstLEB(int32(dataOffset))...)
	dataEntry = append(dataEntry, 0x0b) // end
	dataEntry = append(dataEntry, byte(len(dataSeg)))
	dataEntry = append(dataEntry, dataSeg...)
	m = append(m, 0x0b)
	m = append(m, leb128U(uint32(1+len(dataEntry)))...)
	m = append(m, 0x01)
	m = append(m, dataEntry...)

	return m
}

// calleeModule exports "run", which reports the 2-byte string "ok" back via
// import_return_value, at an offset past the environment-data region.
var calleeModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x09, 0x02, 0x60, 0x00, 0x00, 0x60, 0x02, 0x7f, 0x7f, 0x00,
	0x02, 0x1b, 0x01,
	0x03, 'e', 'n', 'v', 0x13, 'i', 'm', 'p', 'o', 'r', 't', '_', 'r', 'e', 't', 'u', 'r', 'n', '_', 'v', 'a', 'l', 'u', 'e', 0x00, 0x01,
	0x03, 0x02, 0x01, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x10, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x03, 'r', 'u', 'n', 0x00, 0x01,
	0x0a, 0x0b, 0x01, 0x09, 0x00,
	0x41, 0xd8, 0x04, // i32.const 600
	0x41, 0x02, // i32.const 2
	0x10, 0x00, // call 0 (import_return_value)
	0x0b,
	0x0b, 0x09, 0x01, 0x00,
	0x41, 0xd8, 0x04, 0x0b, // offset expr: i32.const 600, end
	0x02, 'o', 'k',
}

// i32ConstLEB encodes `i32.const v` with v as signed LEB128.
func i32ConstLEB(v int32) []byte {
	out := []byte{0x41}
	out = append(out, leb128S(int64(v))...)
	return out
}

func leb128S(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			break
		}
		out = append(out, b|0x80)
	}
	return out
}

func leb128U(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			out = append(out, b)
			break
		}
		out = append(out, b|0x80)
	}
	return out
}

func TestSandboxCallCrossContractInvocation(t *testing.T) {
	store := kv.NewMemStore()
	r := kv.NewReversible(store)
	sandbox := NewSandbox(NewModuleCache(4))

	targetSk, err := bls.GenerateKey(make([]byte, bls.SeedSize))
	require.NoError(t, err)
	targetPk := bls.PublicKeyFromSecret(targetSk)
	require.NoError(t, bic.Deploy(r, targetPk, calleeModule))

	env := testEnv()
	env.AccountCurrent = targetPk[:] // arbitrary; only used for gas/account bookkeeping here

	caller := buildCallerModule(targetPk)
	ret, _, err := sandbox.Call(r, env, caller, "run", nil)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), ret)
}

func TestSandboxCallCrossContractInvocationFailsForMissingContract(t *testing.T) {
	store := kv.NewMemStore()
	r := kv.NewReversible(store)
	sandbox := NewSandbox(NewModuleCache(4))

	targetSk, err := bls.GenerateKey(make([]byte, bls.SeedSize))
	require.NoError(t, err)
	targetPk := bls.PublicKeyFromSecret(targetSk) // never deployed

	env := testEnv()
	env.AccountCurrent = targetPk[:]

	caller := buildCallerModule(targetPk)
	ret, _, err := sandbox.Call(r, env, caller, "run", nil)
	require.NoError(t, err)
	// xcc_failed: call_0 returns -1, which import_return_value receives as
	// a negative length and reads back as an empty slice.
	require.Empty(t, ret)
}

func TestNonceLow64TakesLowBytes(t *testing.T) {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[8:], 0xdeadbeef)
	require.Equal(t, int64(0xdeadbeef), nonceLow64(b))
}

func TestBuildEnvLayoutRegionsDoNotOverlap(t *testing.T) {
	l := buildEnvLayout()
	offsets := []int32{
		l.seed, l.entrySigner, l.entryPrevHash, l.entryVR, l.entryDR, l.txSigner,
		l.accountCurrent, l.accountCaller, l.accountOrigin, l.attachedSymbol, l.attachedAmount,
	}
	for i, off := range offsets {
		require.GreaterOrEqual(t, off, int32(0))
		if i > 0 {
			require.Greater(t, off, offsets[i-1])
		}
	}
	require.Greater(t, l.end, offsets[len(offsets)-1])
}
