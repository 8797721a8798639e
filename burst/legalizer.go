// Package burst converts raw transfer ranges into protocol-conformant bus
// bursts. A legal burst never crosses the configured alignment boundary and
// never exceeds the maximum burst footprint; misaligned leading and trailing
// bytes are expressed through per-byte strobes over a bus-width-aligned
// footprint.
package burst

import "log"

// A Burst is one protocol-legal bus transaction. Addr is aligned to the bus
// width and NumBytes is a multiple of it; the bytes the transfer actually
// owns are the contiguous range [Lo, Hi) inside that footprint.
type Burst struct {
	Addr        uint64
	NumBytes    uint64
	FirstOffset uint64
	OwnedBytes  uint64
}

// Lo returns the first owned byte address.
func (b Burst) Lo() uint64 {
	return b.Addr + b.FirstOffset
}

// Hi returns the address one past the last owned byte.
func (b Burst) Hi() uint64 {
	return b.Lo() + b.OwnedBytes
}

// Strobe returns the per-byte enable mask over the burst footprint, in the
// shape that write requests take as their dirty mask.
func (b Burst) Strobe() []bool {
	mask := make([]bool, b.NumBytes)
	for i := b.FirstOffset; i < b.FirstOffset+b.OwnedBytes; i++ {
		mask[i] = true
	}

	return mask
}

// A Legalizer splits transfer ranges according to an immutable rule set.
type Legalizer struct {
	widthBytes    uint64
	maxBurstBytes uint64
	boundaryBytes uint64
}

// NewLegalizer creates a legalizer for the given bus width, maximum burst
// footprint, and alignment boundary, all in bytes.
func NewLegalizer(widthBytes, maxBurstBytes, boundaryBytes uint64) Legalizer {
	if widthBytes == 0 || widthBytes&(widthBytes-1) != 0 {
		log.Panicf("bus width %d must be a power of two", widthBytes)
	}

	if maxBurstBytes == 0 || maxBurstBytes%widthBytes != 0 {
		log.Panicf("max burst %d must be a multiple of the bus width %d",
			maxBurstBytes, widthBytes)
	}

	if boundaryBytes == 0 || boundaryBytes&(boundaryBytes-1) != 0 ||
		boundaryBytes < maxBurstBytes {
		log.Panicf("boundary %d must be a power of two >= max burst %d",
			boundaryBytes, maxBurstBytes)
	}

	return Legalizer{
		widthBytes:    widthBytes,
		maxBurstBytes: maxBurstBytes,
		boundaryBytes: boundaryBytes,
	}
}

// WidthBytes returns the bus data width.
func (l Legalizer) WidthBytes() uint64 {
	return l.widthBytes
}

// Split legalizes the byte range [addr, addr+numBytes). The returned bursts'
// owned ranges concatenate to exactly the requested range, in address order.
// A zero-length range yields no bursts.
func (l Legalizer) Split(addr, numBytes uint64) []Burst {
	var bursts []Burst

	lo := addr
	end := addr + numBytes

	for lo < end {
		base := alignDown(lo, l.widthBytes)
		footEnd := alignUp(end, l.widthBytes)

		if boundEnd := alignDown(base, l.boundaryBytes) + l.boundaryBytes; footEnd > boundEnd {
			footEnd = boundEnd
		}

		if footEnd > base+l.maxBurstBytes {
			footEnd = base + l.maxBurstBytes
		}

		hi := end
		if hi > footEnd {
			hi = footEnd
		}

		bursts = append(bursts, Burst{
			Addr:        base,
			NumBytes:    alignUp(hi, l.widthBytes) - base,
			FirstOffset: lo - base,
			OwnedBytes:  hi - lo,
		})

		lo = hi
	}

	return bursts
}

// Verify checks that a range is already legal without hardware legalization:
// width-aligned on both ends and breakable at max-burst steps without
// crossing the alignment boundary. It reports the first offending address.
func (l Legalizer) Verify(addr, numBytes uint64) (faultAddr uint64, ok bool) {
	if addr%l.widthBytes != 0 {
		return addr, false
	}

	if numBytes%l.widthBytes != 0 {
		return addr + numBytes, false
	}

	for _, b := range l.Chop(addr, numBytes) {
		if alignDown(b.Addr, l.boundaryBytes) !=
			alignDown(b.Addr+b.NumBytes-1, l.boundaryBytes) {
			return b.Addr, false
		}
	}

	return 0, true
}

// Chop cuts a pre-legalized range at max-burst steps without any alignment
// correction. Used when hardware legalization is disabled.
func (l Legalizer) Chop(addr, numBytes uint64) []Burst {
	var bursts []Burst

	for lo := addr; lo < addr+numBytes; lo += l.maxBurstBytes {
		n := addr + numBytes - lo
		if n > l.maxBurstBytes {
			n = l.maxBurstBytes
		}

		bursts = append(bursts, Burst{
			Addr:       lo,
			NumBytes:   n,
			OwnedBytes: n,
		})
	}

	return bursts
}

func alignDown(addr, granularity uint64) uint64 {
	return addr / granularity * granularity
}

func alignUp(addr, granularity uint64) uint64 {
	return (addr + granularity - 1) / granularity * granularity
}
