// Package desc defines the in-memory descriptor record format that the DMA
// engine walks. A chain is a linked list of fixed-size records; the engine
// follows NextAddr until it reads the all-ones sentinel.
package desc

import "encoding/binary"

// RecordBytes is the size of one descriptor record in memory.
const RecordBytes = 32

// NextSentinel in the NextAddr field terminates a chain.
const NextSentinel = ^uint64(0)

// Byte offsets of the record fields. The layout is little-endian:
// DstAddr(8) SrcAddr(8) NextAddr(8) Length(4) Flags(4).
const (
	DstAddrOffset  = 0
	SrcAddrOffset  = 8
	NextAddrOffset = 16
	LengthOffset   = 24
	FlagsOffset    = 28
)

// Flag bits in the Flags field. Undefined bits are reserved and ignored.
const (
	// FlagHaltOnError stops chain processing if this transfer faults, even
	// when the engine is configured to report-and-continue.
	FlagHaltOnError uint32 = 1 << 0

	// FlagSuppressIrq suppresses the completion interrupt when set on the
	// last record of a chain.
	FlagSuppressIrq uint32 = 1 << 1
)

// A Record is one node of a descriptor chain.
type Record struct {
	DstAddr  uint64
	SrcAddr  uint64
	NextAddr uint64
	Length   uint32
	Flags    uint32
}

// Last returns true if the record terminates its chain.
func (r Record) Last() bool {
	return r.NextAddr == NextSentinel
}

// Decode parses a record from its 32-byte memory image.
func Decode(data []byte) Record {
	if len(data) < RecordBytes {
		panic("descriptor image must be at least 32 bytes")
	}

	return Record{
		DstAddr:  binary.LittleEndian.Uint64(data[DstAddrOffset:]),
		SrcAddr:  binary.LittleEndian.Uint64(data[SrcAddrOffset:]),
		NextAddr: binary.LittleEndian.Uint64(data[NextAddrOffset:]),
		Length:   binary.LittleEndian.Uint32(data[LengthOffset:]),
		Flags:    binary.LittleEndian.Uint32(data[FlagsOffset:]),
	}
}

// Encode returns the 32-byte memory image of the record.
func (r Record) Encode() []byte {
	data := make([]byte, RecordBytes)
	binary.LittleEndian.PutUint64(data[DstAddrOffset:], r.DstAddr)
	binary.LittleEndian.PutUint64(data[SrcAddrOffset:], r.SrcAddr)
	binary.LittleEndian.PutUint64(data[NextAddrOffset:], r.NextAddr)
	binary.LittleEndian.PutUint32(data[LengthOffset:], r.Length)
	binary.LittleEndian.PutUint32(data[FlagsOffset:], r.Flags)

	return data
}
