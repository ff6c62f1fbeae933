package config

var crcTable = [16]uint32{
	0x00000000, 0x1db71064, 0x3b6e20c8, 0x26d930ac,
	0x76dc4190, 0x6b6b51f4, 0x4db26158, 0x5005713c,
	0xedb88320, 0xf00f9344, 0xd6d6a3e8, 0xcb61b38c,
	0x9b64c2b0, 0x86d3d2d4, 0xa00ae278, 0xbdbdf21c,
}

// CRC computes the checksum stored at the head of every block. It is a
// nibble-table CRC-32 that inverts the register after each byte, so it does
// not match hash/crc32; images written by existing controllers must keep
// verifying.
func CRC(b []byte) uint32 {
	crc := ^uint32(0)
	for _, c := range b {
		crc = crcTable[(crc^uint32(c))&0x0f] ^ (crc >> 4)
		crc = crcTable[(crc^uint32(c>>4))&0x0f] ^ (crc >> 4)
		crc = ^crc
	}
	return crc
}
