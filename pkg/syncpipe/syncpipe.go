// Copyright 2021 The runbox Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package syncpipe implements the one-shot rendezvous tokens exchanged
// between the sandbox parent and its child during startup.
//
// Each direction is a separate pipe carrying exactly one 8-byte token over
// its lifetime. A pipe, unlike an eventfd, turns the death of the peer into
// an immediate read failure: when every copy of the write end is gone, the
// reader sees EOF instead of blocking forever.
package syncpipe

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	// ReadyToken is written by the child once its standard streams are
	// wired and it is safe to install resource limits.
	ReadyToken uint64 = 0xb0075039

	// ReleaseToken is written by the parent once the cgroups are in place
	// and the wall-clock killer is armed.
	ReleaseToken uint64 = 0x90a4ead5
)

// Pipe is one direction of the rendezvous channel. The process that created
// it holds both ends; the peer inherits exactly one of them.
type Pipe struct {
	r *os.File
	w *os.File
}

// New creates a pipe with both ends open.
func New() (*Pipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating rendezvous pipe: %w", err)
	}
	return &Pipe{r: r, w: w}, nil
}

// ReadEndFromFD adopts an inherited descriptor as the read end of a pipe
// whose write end lives in the peer process.
func ReadEndFromFD(fd int) *Pipe {
	return &Pipe{r: os.NewFile(uintptr(fd), "syncpipe-read")}
}

// WriteEndFromFD adopts an inherited descriptor as the write end of a pipe
// whose read end lives in the peer process.
func WriteEndFromFD(fd int) *Pipe {
	return &Pipe{w: os.NewFile(uintptr(fd), "syncpipe-write")}
}

// ReadEnd returns the read end for donation to a child process.
func (p *Pipe) ReadEnd() *os.File { return p.r }

// WriteEnd returns the write end for donation to a child process.
func (p *Pipe) WriteEnd() *os.File { return p.w }

// Signal writes token and unblocks exactly one Await on the other end.
func (p *Pipe) Signal(token uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], token)
	if _, err := p.w.Write(buf[:]); err != nil {
		return fmt.Errorf("writing rendezvous token: %w", err)
	}
	return nil
}

// Await blocks until the peer's token arrives and verifies its value. A
// token of the wrong value is refused, and a closed peer surfaces as a read
// error.
func (p *Pipe) Await(want uint64) error {
	var buf [8]byte
	if _, err := io.ReadFull(p.r, buf[:]); err != nil {
		return fmt.Errorf("reading rendezvous token: %w", err)
	}
	if got := binary.LittleEndian.Uint64(buf[:]); got != want {
		return fmt.Errorf("unexpected rendezvous token %#x, want %#x", got, want)
	}
	return nil
}

// CloseRead closes the read end, if held.
func (p *Pipe) CloseRead() {
	if p.r != nil {
		p.r.Close()
		p.r = nil
	}
}

// CloseWrite closes the write end, if held.
func (p *Pipe) CloseWrite() {
	if p.w != nil {
		p.w.Close()
		p.w = nil
	}
}

// Close closes whichever ends are still held. Safe to call more than once.
func (p *Pipe) Close() {
	p.CloseRead()
	p.CloseWrite()
}
