// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import "github.com/sigurn/crc16"

// The heater checksum is CRC-16 with init 0xFFFF and reflected polynomial
// 0xA001, which is the MODBUS parameter set.
var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Checksum computes the frame checksum over data
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// AppendChecksum appends sum to dst high byte first, which is the order the
// heater expects on the wire.
func AppendChecksum(dst []byte, sum uint16) []byte {
	return append(dst, byte(sum>>8), byte(sum))
}
