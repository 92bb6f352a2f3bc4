// Package nvimhost runs mdmath as a Neovim RPC host.
//
// Neovim talks to the host over stdio using msgpack-rpc. The Lua side sends
// notifications (mdmath.enable, mdmath.disable, mdmath.refresh,
// mdmath.set_foreground, mdmath.set_scale); the host attaches to enabled
// buffers, follows their nvim_buf_lines_event notifications to keep
// equation spans in place, and draws results as extmark virtual text.
//
// Every notification is turned into work posted to the event loop, so the
// RPC goroutine never touches render state.
package nvimhost
