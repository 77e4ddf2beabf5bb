package configstore

import "encoding/binary"

// Export renders data as the wire envelope of spec.md §4.6:
// [size_le_u32][data][crc32_le_u32].
func Export(data []byte) []byte {
	buf := make([]byte, 4, 4+len(data)+4)
	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	buf = append(buf, data...)
	crcBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(crcBuf, CRC32(data))
	return append(buf, crcBuf...)
}

// Import validates an Export envelope's CRC before returning its body,
// per spec.md §4.6's "Import verifies CRC before overwriting RAM copy."
func Import(envelope []byte) ([]byte, error) {
	if len(envelope) < 8 {
		return nil, ErrEnvelopeShort
	}
	size := binary.LittleEndian.Uint32(envelope[0:4])
	if uint64(4)+uint64(size)+4 != uint64(len(envelope)) {
		return nil, ErrEnvelopeShort
	}
	data := envelope[4 : 4+size]
	wantCRC := binary.LittleEndian.Uint32(envelope[4+size:])
	if CRC32(data) != wantCRC {
		return nil, ErrEnvelopeCRC
	}
	return data, nil
}
