package mmqr

// CRC16-CCITT (polynomial 0x1021, initial register 0xFFFF), as
// required for the EMVCo CRC field. Operates on raw bytes so
// multi-byte UTF-8 sequences checksum the same way they are counted.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
