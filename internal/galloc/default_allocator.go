// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package galloc

import (
	"unsafe"

	"github.com/gspizzico/Zn-sub000/internal/logx"
)

const (
	mallocAlign = 16 // must be >= 16
)

var defaultLog = logx.Category("DefaultAllocator")

var (
	headerSize  = roundup(int(unsafe.Sizeof(defaultPage{})), mallocAlign)
	maxSlotSize = pageAvail >> 1
	osPageMask  = osPageSize - 1
	pageAvail   = defaultPageSize - headerSize
	pageMask    = defaultPageSize - 1
)

// if n%m != 0 { n += m-n%m }. m must be a power of 2.
func roundup(n, m int) int { return (n + m - 1) &^ (m - 1) }

type defaultNode struct {
	prev, next *defaultNode
}

type defaultPage struct {
	brk  int
	log  uint
	size int
	used int
}

// defaultAllocator is the bootstrap allocator galloc falls back to before
// the full multi-strategy toplevel.TopAllocator is constructed, and the
// implementation behind galloc.Bootstrap(UseDefaultMallocOnly: true). It
// mmaps pages directly and carves size-classed free lists out of them —
// no dependency on any other package in this module, which is exactly
// what makes it safe to use before the rest of the allocator is wired up.
// Its zero value is ready for use.
type defaultAllocator struct {
	allocs int // # of allocs.
	bytes  int // asked from OS.
	cap    [64]int
	lists  [64]*defaultNode
	mmaps  int // asked from OS.
	pages  [64]*defaultPage
	regs   map[*defaultPage]struct{}
}

func (a *defaultAllocator) mmap(size int) (*defaultPage, error) {
	b, err := mmapPage(size)
	if err != nil {
		defaultLog.Warning("bootstrap page mmap failed", "size", size, "err", err)
		return nil, err
	}

	a.mmaps++
	a.bytes += len(b)
	p := (*defaultPage)(unsafe.Pointer(&b[0]))
	if a.regs == nil {
		a.regs = map[*defaultPage]struct{}{}
	}
	p.size = len(b)
	a.regs[p] = struct{}{}
	defaultLog.Verbose("bootstrap page mapped", "size", len(b), "live", len(a.regs))
	return p, nil
}

func (a *defaultAllocator) newPage(size int) (*defaultPage, error) {
	size += headerSize
	p, err := a.mmap(size)
	if err != nil {
		return nil, err
	}

	p.log = 0
	return p, nil
}

func (a *defaultAllocator) newSharedPage(log uint) (*defaultPage, error) {
	if a.cap[log] == 0 {
		a.cap[log] = pageAvail / (1 << log)
	}
	size := headerSize + a.cap[log]<<log
	p, err := a.mmap(size)
	if err != nil {
		return nil, err
	}

	a.pages[log] = p
	p.log = log
	return p, nil
}

func (a *defaultAllocator) unmap(p *defaultPage) error {
	delete(a.regs, p)
	a.mmaps--
	defaultLog.Verbose("bootstrap page unmapped", "size", p.size, "live", len(a.regs))
	return unmapPage(unsafe.Pointer(p), p.size)
}

// close releases all OS resources used by a and sets it to its zero value.
func (a *defaultAllocator) close() error {
	var err error
	n := len(a.regs)
	for p := range a.regs {
		if e := a.unmap(p); e != nil && err == nil {
			err = e
		}
	}
	if n > 0 {
		defaultLog.Info("bootstrap allocator closed", "pagesReleased", n)
	}
	*a = defaultAllocator{}
	return err
}

// usableSize reports the size of the memory block allocated at addr, which
// must be an address returned by mallocPtr. freePtr uses it to know how
// much of the block to stamp with the freed-memory fill pattern.
func usableSize(addr uintptr) int {
	if addr == 0 {
		return 0
	}
	pg := (*defaultPage)(unsafe.Pointer(addr &^ uintptr(pageMask)))
	if pg.log != 0 {
		return 1 << pg.log
	}
	return pg.size - headerSize
}
