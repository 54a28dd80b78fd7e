// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package guda runs code written against a GPU compute API on the CPU.
//
// A kernel launch is emulated block by block: blocks of a grid run strictly
// one after the other, and the threads of a block run as parallel
// goroutines that can rendezvous with SyncThreads. At most one kernel is
// executing at any instant in the whole process.
//
// Work is submitted to streams. Each stream is a FIFO served by its own
// worker goroutine, so different streams run concurrently while the tasks
// of one stream run in order. Events mark positions in a stream and let
// other goroutines or streams wait for them. The default stream is
// implicitly ordered against blocking streams, as with the legacy default
// stream of the GPU API.
//
// Host and device share one address space: device allocations are plain Go
// memory and every copy kind is a byte copy.
//
// Correctness of ordering and synchronization comes first; the emulation is
// meant for debugging, development without accelerators, and as a host
// fallback, not for speed.
package guda
