// Package heap implements the row store behind a table: fixed-width tuple
// slots packed into fixed-size pages, a bitmap header tracking slot
// occupancy, and a file that addresses pages by number. All page access
// from the outside goes through the buffer pool; the file only ever touches
// disk when the pool asks it to.
package heap

import (
	"bytes"
	"io"
	"sync"

	"corestore/pkg/concurrency/txn"
	"corestore/pkg/dberr"
	"corestore/pkg/storage"
	"corestore/pkg/tuple"
)

// Page is one slotted heap page. The on-disk layout is a slot-occupancy
// bitmap followed by numSlots fixed-width tuple slots, zero-padded to
// storage.PageSize:
//
//	[bitmap][slot 0][slot 1]...[slot n-1][padding]
//
// numSlots is the largest n with n*(tupleSize*8+1) <= PageSize*8, one
// header bit per slot.
type Page struct {
	mu      sync.RWMutex
	id      storage.PageID
	desc    tuple.Description
	header  []byte
	tuples  []*tuple.Tuple
	dirtier *txn.ID
}

func slotsPerPage(desc tuple.Description) int {
	return (storage.PageSize * 8) / (desc.Size()*8 + 1)
}

func headerBytes(numSlots int) int {
	return (numSlots + 7) / 8
}

// NewPage parses a page from its on-disk form. data must be exactly
// storage.PageSize bytes; an all-zero buffer parses as an empty page.
func NewPage(id storage.PageID, data []byte, desc tuple.Description) (*Page, error) {
	if len(data) != storage.PageSize {
		return nil, dberr.BadInput("page data is %d bytes, want %d", len(data), storage.PageSize)
	}
	numSlots := slotsPerPage(desc)
	if numSlots < 1 {
		return nil, dberr.BadInput("tuple of %d bytes does not fit a %d byte page", desc.Size(), storage.PageSize)
	}

	p := &Page{
		id:     id,
		desc:   desc,
		header: make([]byte, headerBytes(numSlots)),
		tuples: make([]*tuple.Tuple, numSlots),
	}
	copy(p.header, data)

	r := bytes.NewReader(data[headerBytes(numSlots):])
	size := desc.Size()
	for slot := 0; slot < numSlots; slot++ {
		if !p.slotUsed(slot) {
			if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, dberr.BadInput("truncated page %s", id)
			}
			continue
		}
		t, err := tuple.Decode(desc, r)
		if err != nil {
			return nil, dberr.BadInput("corrupt tuple in slot %d of %s: %v", slot, id, err)
		}
		t.RID = tuple.RecordID{Page: id, Slot: slot}
		p.tuples[slot] = t
	}
	return p, nil
}

// NewEmptyPage creates a blank page with every slot free.
func NewEmptyPage(id storage.PageID, desc tuple.Description) *Page {
	numSlots := slotsPerPage(desc)
	return &Page{
		id:     id,
		desc:   desc,
		header: make([]byte, headerBytes(numSlots)),
		tuples: make([]*tuple.Tuple, numSlots),
	}
}

func (p *Page) slotUsed(slot int) bool {
	return p.header[slot/8]&(1<<(slot%8)) != 0
}

func (p *Page) setSlot(slot int, used bool) {
	if used {
		p.header[slot/8] |= 1 << (slot % 8)
	} else {
		p.header[slot/8] &^= 1 << (slot % 8)
	}
}

// ID returns the page's identity.
func (p *Page) ID() storage.PageID { return p.id }

// Dirtier returns the transaction that last dirtied this page, or nil.
func (p *Page) Dirtier() *txn.ID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dirtier
}

// MarkDirty records (or clears) the dirtying transaction.
func (p *Page) MarkDirty(dirty bool, tid *txn.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if dirty {
		p.dirtier = tid
	} else {
		p.dirtier = nil
	}
}

// EmptySlots returns the number of free slots.
func (p *Page) EmptySlots() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	free := 0
	for slot := range p.tuples {
		if !p.slotUsed(slot) {
			free++
		}
	}
	return free
}

// InsertTuple places t in the first free slot and assigns its record id.
func (p *Page) InsertTuple(t *tuple.Tuple) error {
	if t == nil {
		return dberr.BadInput("cannot insert a nil tuple")
	}
	if !t.Desc.Equals(p.desc) {
		return dberr.BadInput("tuple schema does not match page %s", p.id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for slot := range p.tuples {
		if p.slotUsed(slot) {
			continue
		}
		p.setSlot(slot, true)
		t.RID = tuple.RecordID{Page: p.id, Slot: slot}
		p.tuples[slot] = t
		return nil
	}
	return dberr.BadInput("page %s is full", p.id)
}

// DeleteTuple frees the slot t's record id names.
func (p *Page) DeleteTuple(t *tuple.Tuple) error {
	if t == nil {
		return dberr.BadInput("cannot delete a nil tuple")
	}
	if t.RID.Page != p.id {
		return dberr.BadInput("tuple %s does not live on page %s", t.RID, p.id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	slot := t.RID.Slot
	if slot < 0 || slot >= len(p.tuples) || !p.slotUsed(slot) {
		return dberr.BadInput("no tuple in slot %d of %s", slot, p.id)
	}
	p.setSlot(slot, false)
	p.tuples[slot] = nil
	return nil
}

// Tuples returns the occupied slots' tuples in slot order.
func (p *Page) Tuples() []*tuple.Tuple {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*tuple.Tuple, 0, len(p.tuples))
	for slot, t := range p.tuples {
		if p.slotUsed(slot) && t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Bytes serializes the page into its storage.PageSize on-disk form.
func (p *Page) Bytes() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]byte, storage.PageSize)
	copy(out, p.header)

	size := p.desc.Size()
	base := headerBytes(len(p.tuples))
	for slot, t := range p.tuples {
		if !p.slotUsed(slot) || t == nil {
			continue
		}
		enc, err := t.Encode()
		if err != nil {
			// Fields validated their width at insert time; an encode
			// failure here means the slot was corrupted in memory. Leave
			// it zeroed rather than write garbage.
			continue
		}
		copy(out[base+slot*size:], enc)
	}
	return out
}
