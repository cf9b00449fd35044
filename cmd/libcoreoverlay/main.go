// libcoreoverlay 是 CoreOverlay 的 C 动态库
//
// 构建：
//
//	go build -buildmode=c-shared -o libcoreoverlay.so ./cmd/libcoreoverlay
//
// 同时生成 libcoreoverlay.h。本库返回的字符串都需要调用方用
// ovr_free_string 释放；new_dht 返回的结构体用 free_dht 释放。
// arch、ovr_arch、ovr_os、ovr_user_agent 返回进程级常量字符串，
// 对它们调用 ovr_free_string 不会产生任何效果。
package main

/*
#include <stdint.h>
#include <stdlib.h>

typedef struct CoreOverlayDHTEngine {
	uintptr_t handle;
	char *local_peer_id;
	uint8_t *local_key;
	size_t local_key_len;
} CoreOverlayDHTEngine;
*/
import "C"

import (
	"log/slog"
	"unsafe"

	"github.com/coreoverlay/go-coreoverlay/internal/bridge"
	"github.com/coreoverlay/go-coreoverlay/internal/platform"
)

func main() {}

// 进程内只分配一次，不随调用泄漏
var (
	cArch      = C.CString(platform.Arch())
	cOS        = C.CString(platform.OS())
	cUserAgent = C.CString(platform.UserAgent())
)

func isStatic(s *C.char) bool {
	return s == cArch || s == cOS || s == cUserAgent
}

// ════════════════════════════════════════════════════════════════════════════
//                              基础函数
// ════════════════════════════════════════════════════════════════════════════

//export add
func add(a, b C.int64_t) C.int64_t {
	return C.int64_t(bridge.Add(int64(a), int64(b)))
}

//export arch
func arch() *C.char {
	return cArch
}

//export ovr_arch
func ovr_arch() *C.char {
	return cArch
}

//export ovr_os
func ovr_os() *C.char {
	return cOS
}

//export ovr_user_agent
func ovr_user_agent() *C.char {
	return cUserAgent
}

//export ovr_free_string
func ovr_free_string(s *C.char) {
	if s != nil && !isStatic(s) {
		C.free(unsafe.Pointer(s))
	}
}

//export ovr_last_error
func ovr_last_error() *C.char {
	msg := bridge.LastError()
	if msg == "" {
		return nil
	}
	return C.CString(msg)
}

// ════════════════════════════════════════════════════════════════════════════
//                              日志
// ════════════════════════════════════════════════════════════════════════════

func logAt(level slog.Level, msg *C.char) {
	if msg == nil {
		return
	}
	bridge.Log(level, C.GoString(msg))
}

//export ovry_log
func ovry_log(msg *C.char) { logAt(slog.LevelInfo, msg) }

//export ovry_info
func ovry_info(msg *C.char) { logAt(slog.LevelInfo, msg) }

//export ovry_warning
func ovry_warning(msg *C.char) { logAt(slog.LevelWarn, msg) }

//export ovry_error
func ovry_error(msg *C.char) { logAt(slog.LevelError, msg) }

// ════════════════════════════════════════════════════════════════════════════
//                              网络与 WASM
// ════════════════════════════════════════════════════════════════════════════

//export overlay_ping
func overlay_ping(listenOn *C.char) {
	_, _ = bridge.OverlayPing(goString(listenOn))
}

//export c_exec_wasm_text_module
func c_exec_wasm_text_module(wat, mainFn *C.char) {
	if wat == nil || mainFn == nil {
		bridge.SetLastError(bridge.ErrNilArgument)
		return
	}
	_, _ = bridge.ExecWasmText(C.GoString(wat), C.GoString(mainFn))
}

//export c_exec_wasm_native_module
func c_exec_wasm_native_module(buf *C.uint8_t, length C.size_t) {
	if buf == nil {
		bridge.SetLastError(bridge.ErrNilArgument)
		return
	}
	if bridge.CheckBufferLen(uint64(length)) != nil {
		return
	}
	_, _ = bridge.ExecWasmNative(C.GoBytes(unsafe.Pointer(buf), C.int(length)))
}

//export load_wasm_text_module
func load_wasm_text_module(wat, mainFn *C.char) {
	c_exec_wasm_text_module(wat, mainFn)
}

//export load_wasm_module
func load_wasm_module(buf *C.uint8_t, length C.size_t) {
	c_exec_wasm_native_module(buf, length)
}

//export wasm_test
func wasm_test() {
	_ = bridge.WasmTest()
}

// ════════════════════════════════════════════════════════════════════════════
//                              DHT 引擎
// ════════════════════════════════════════════════════════════════════════════

//export new_dht
func new_dht() *C.CoreOverlayDHTEngine {
	info, err := bridge.NewEngine()
	if err != nil {
		return nil
	}
	e := (*C.CoreOverlayDHTEngine)(C.malloc(C.size_t(unsafe.Sizeof(C.CoreOverlayDHTEngine{}))))
	e.handle = C.uintptr_t(info.Handle)
	e.local_peer_id = C.CString(info.PeerID)
	e.local_key = (*C.uint8_t)(C.CBytes(info.PublicKey))
	e.local_key_len = C.size_t(len(info.PublicKey))
	return e
}

//export free_dht
func free_dht(e *C.CoreOverlayDHTEngine) {
	if e == nil {
		return
	}
	_ = bridge.FreeEngine(bridge.Handle(e.handle))
	C.free(unsafe.Pointer(e.local_peer_id))
	C.free(unsafe.Pointer(e.local_key))
	C.free(unsafe.Pointer(e))
}

//export dht_start
func dht_start(e *C.CoreOverlayDHTEngine, listenOn *C.char) C.int {
	h, ok := handleOf(e)
	if !ok {
		return -1
	}
	return status(bridge.Start(h, goString(listenOn)))
}

//export dht_bootstrap
func dht_bootstrap(e *C.CoreOverlayDHTEngine, addr *C.char) C.int {
	h, ok := handleOf(e)
	if !ok {
		return -1
	}
	return status(bridge.Bootstrap(h, goString(addr)))
}

//export dht_put
func dht_put(e *C.CoreOverlayDHTEngine, key, value *C.char) C.int {
	h, ok := handleOf(e)
	if !ok || key == nil {
		bridge.SetLastError(bridge.ErrNilArgument)
		return -1
	}
	return status(bridge.Put(h, C.GoString(key), []byte(goString(value))))
}

//export dht_get
func dht_get(e *C.CoreOverlayDHTEngine, key *C.char) *C.char {
	h, ok := handleOf(e)
	if !ok || key == nil {
		bridge.SetLastError(bridge.ErrNilArgument)
		return nil
	}
	value, err := bridge.Get(h, C.GoString(key))
	if err != nil {
		return nil
	}
	return C.CString(string(value))
}

//export dht_provide
func dht_provide(e *C.CoreOverlayDHTEngine, key *C.char) C.int {
	h, ok := handleOf(e)
	if !ok || key == nil {
		bridge.SetLastError(bridge.ErrNilArgument)
		return -1
	}
	return status(bridge.Provide(h, C.GoString(key)))
}

//export dht_find_providers
func dht_find_providers(e *C.CoreOverlayDHTEngine, key *C.char) *C.char {
	h, ok := handleOf(e)
	if !ok || key == nil {
		bridge.SetLastError(bridge.ErrNilArgument)
		return nil
	}
	out, err := bridge.FindProviders(h, C.GoString(key))
	if err != nil {
		return nil
	}
	return C.CString(out)
}

//export dht_exec
func dht_exec(e *C.CoreOverlayDHTEngine, line *C.char) *C.char {
	h, ok := handleOf(e)
	if !ok || line == nil {
		bridge.SetLastError(bridge.ErrNilArgument)
		return nil
	}
	out, err := bridge.Exec(h, C.GoString(line))
	if err != nil {
		return nil
	}
	return C.CString(out)
}

//export dht_ping
func dht_ping(e *C.CoreOverlayDHTEngine, peer *C.char) C.int64_t {
	h, ok := handleOf(e)
	if !ok || peer == nil {
		bridge.SetLastError(bridge.ErrNilArgument)
		return -1
	}
	rtt, err := bridge.Ping(h, C.GoString(peer))
	if err != nil {
		return -1
	}
	return C.int64_t(rtt)
}

func handleOf(e *C.CoreOverlayDHTEngine) (bridge.Handle, bool) {
	if e == nil {
		bridge.SetLastError(bridge.ErrNilArgument)
		return 0, false
	}
	return bridge.Handle(e.handle), true
}

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

func status(err error) C.int {
	if err != nil {
		return -1
	}
	return 0
}
