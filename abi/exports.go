package abi

import (
	"context"
	"reflect"

	"github.com/tetratelabs/wazero/api"

	hostlayer "github.com/wippyai/hostlayer"
)

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

type function struct {
	call    api.GoModuleFunc
	name    string
	params  []api.ValueType
	results []api.ValueType
	names   []string
}

// memoryOf returns the caller's linear memory, or nil when it has none.
// Modules without memory report a typed nil.
func memoryOf(mod api.Module) hostlayer.Memory {
	if mod == nil {
		return nil
	}
	mem := mod.Memory()
	if mem == nil {
		return nil
	}
	if v := reflect.ValueOf(mem); v.Kind() == reflect.Pointer && v.IsNil() {
		return nil
	}
	return mem
}

func s32(v uint64) int32  { return api.DecodeI32(v) }
func u32(v uint64) uint32 { return api.DecodeU32(v) }

// functions lists every export of the host module.
func (h *Host) functions() []function {
	return []function{
		{
			name:   "socket",
			params: []api.ValueType{i32, i32, i32}, results: []api.ValueType{i32},
			names: []string{"family", "type", "protocol"},
			call: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.socketCall(s32(stack[0]), s32(stack[1]), s32(stack[2])))
			},
		},
		{
			name:   "bind",
			params: []api.ValueType{i32, i32, i32, i32, i32, i32, i32, i32}, results: []api.ValueType{i32},
			names: []string{"family", "type", "protocol", "host_ptr", "host_len", "port_ptr", "port_len", "result_ptr"},
			call: func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.resolveCall(ctx, memoryOf(mod), h.sockets.Bind,
					s32(stack[0]), s32(stack[1]), s32(stack[2]),
					u32(stack[3]), u32(stack[4]), u32(stack[5]), u32(stack[6]), u32(stack[7])))
			},
		},
		{
			name:   "connect",
			params: []api.ValueType{i32, i32, i32, i32, i32, i32, i32, i32}, results: []api.ValueType{i32},
			names: []string{"family", "type", "protocol", "host_ptr", "host_len", "port_ptr", "port_len", "result_ptr"},
			call: func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.resolveCall(ctx, memoryOf(mod), h.sockets.Connect,
					s32(stack[0]), s32(stack[1]), s32(stack[2]),
					u32(stack[3]), u32(stack[4]), u32(stack[5]), u32(stack[6]), u32(stack[7])))
			},
		},
		{
			name:   "listen",
			params: []api.ValueType{i32, i32}, results: []api.ValueType{i32},
			names: []string{"fd", "backlog"},
			call: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.listenCall(s32(stack[0]), s32(stack[1])))
			},
		},
		{
			name:   "accept",
			params: []api.ValueType{i32}, results: []api.ValueType{i32},
			names: []string{"fd"},
			call: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.acceptCall(s32(stack[0])))
			},
		},
		{
			name:   "set_blocking",
			params: []api.ValueType{i32, i32}, results: []api.ValueType{i32},
			names: []string{"fd", "mode"},
			call: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.setBlockingCall(s32(stack[0]), s32(stack[1])))
			},
		},
		{
			name:   "get_peer_address",
			params: []api.ValueType{i32, i32}, results: []api.ValueType{i32},
			names: []string{"fd", "buf_ptr"},
			call: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.peerAddressCall(memoryOf(mod), s32(stack[0]), u32(stack[1])))
			},
		},
		{
			name:   "get_peer_port",
			params: []api.ValueType{i32}, results: []api.ValueType{i32},
			names: []string{"fd"},
			call: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.peerPortCall(s32(stack[0])))
			},
		},
		{
			name:   "read",
			params: []api.ValueType{i32, i32, i32}, results: []api.ValueType{i32},
			names: []string{"fd", "buf_ptr", "count"},
			call: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.readCall(memoryOf(mod), s32(stack[0]), u32(stack[1]), u32(stack[2])))
			},
		},
		{
			name:   "write",
			params: []api.ValueType{i32, i32, i32}, results: []api.ValueType{i32},
			names: []string{"fd", "buf_ptr", "count"},
			call: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.writeCall(memoryOf(mod), s32(stack[0]), u32(stack[1]), u32(stack[2])))
			},
		},
		{
			name:   "close",
			params: []api.ValueType{i32}, results: []api.ValueType{i32},
			names: []string{"fd"},
			call: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.closeCall(s32(stack[0])))
			},
		},
		{
			name:    "net_error",
			results: []api.ValueType{i32},
			call: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.LastError())
			},
		},
		{
			name:   "file_open",
			params: []api.ValueType{i32, i32, i32}, results: []api.ValueType{i32},
			names: []string{"path_ptr", "path_len", "mode"},
			call: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.fileOpenCall(memoryOf(mod), u32(stack[0]), u32(stack[1]), s32(stack[2])))
			},
		},
		{
			name:   "file_close",
			params: []api.ValueType{i32}, results: []api.ValueType{i32},
			names: []string{"handle"},
			call: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.fileCloseCall(s32(stack[0])))
			},
		},
		{
			name:   "file_size",
			params: []api.ValueType{i32}, results: []api.ValueType{i64},
			names: []string{"handle"},
			call: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeI64(h.fileSizeCall(s32(stack[0])))
			},
		},
		{
			name:   "mmap",
			params: []api.ValueType{i32, i64, i64, i32}, results: []api.ValueType{i32},
			names: []string{"file", "offset", "size", "result_ptr"},
			call: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.mmapCall(memoryOf(mod), s32(stack[0]), int64(stack[1]), int64(stack[2]), u32(stack[3])))
			},
		},
		{
			name:   "mmap_read",
			params: []api.ValueType{i32, i64, i32, i32}, results: []api.ValueType{i32},
			names: []string{"region", "offset", "ptr", "len"},
			call: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.regionCopy(memoryOf(mod), s32(stack[0]), int64(stack[1]), u32(stack[2]), u32(stack[3]), true))
			},
		},
		{
			name:   "mmap_write",
			params: []api.ValueType{i32, i64, i32, i32}, results: []api.ValueType{i32},
			names: []string{"region", "offset", "ptr", "len"},
			call: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.regionCopy(memoryOf(mod), s32(stack[0]), int64(stack[1]), u32(stack[2]), u32(stack[3]), false))
			},
		},
		{
			name:   "munmap",
			params: []api.ValueType{i32, i64}, results: []api.ValueType{i32},
			names: []string{"region", "size"},
			call: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.munmapCall(s32(stack[0]), int64(stack[1])))
			},
		},
		{
			name:    "nanotime",
			results: []api.ValueType{i64},
			call: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeI64(h.nanotimeCall())
			},
		},
		{
			name:   "nanosleep",
			params: []api.ValueType{i64},
			names:  []string{"ns"},
			call: func(_ context.Context, _ api.Module, stack []uint64) {
				h.nanosleepCall(int64(stack[0]))
			},
		},
		{
			name: "lock",
			call: func(context.Context, api.Module, []uint64) { h.lockCall() },
		},
		{
			name: "unlock",
			call: func(context.Context, api.Module, []uint64) { h.unlockCall() },
		},
		{
			name:   "mkdir",
			params: []api.ValueType{i32, i32}, results: []api.ValueType{i32},
			names: []string{"path_ptr", "path_len"},
			call: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.mkdirCall(memoryOf(mod), u32(stack[0]), u32(stack[1])))
			},
		},
		{
			name:   "setenv",
			params: []api.ValueType{i32, i32, i32, i32, i32}, results: []api.ValueType{i32},
			names: []string{"name_ptr", "name_len", "value_ptr", "value_len", "overwrite"},
			call: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.setenvCall(memoryOf(mod), u32(stack[0]), u32(stack[1]), u32(stack[2]), u32(stack[3]), s32(stack[4])))
			},
		},
		{
			name:   "unsetenv",
			params: []api.ValueType{i32, i32}, results: []api.ValueType{i32},
			names: []string{"name_ptr", "name_len"},
			call: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.unsetenvCall(memoryOf(mod), u32(stack[0]), u32(stack[1])))
			},
		},
		{
			name:   "rm",
			params: []api.ValueType{i32, i32}, results: []api.ValueType{i32},
			names: []string{"path_ptr", "path_len"},
			call: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.rmCall(memoryOf(mod), u32(stack[0]), u32(stack[1])))
			},
		},
		{
			name:   "stat",
			params: []api.ValueType{i32, i32, i32}, results: []api.ValueType{i32},
			names: []string{"path_ptr", "path_len", "result_ptr"},
			call: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.statCall(memoryOf(mod), u32(stack[0]), u32(stack[1]), u32(stack[2]), true))
			},
		},
		{
			name:   "lstat",
			params: []api.ValueType{i32, i32, i32}, results: []api.ValueType{i32},
			names: []string{"path_ptr", "path_len", "result_ptr"},
			call: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(h.statCall(memoryOf(mod), u32(stack[0]), u32(stack[1]), u32(stack[2]), false))
			},
		},
	}
}

// Exports returns the names of all host functions in export order.
func (h *Host) Exports() []string {
	fns := h.functions()
	names := make([]string, len(fns))
	for i, f := range fns {
		names[i] = f.name
	}
	return names
}
