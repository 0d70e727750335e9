package boltdb

import (
	"encoding/binary"
	"time"
)

// Ключи индексов собираются из big-endian частей, чтобы курсор bbolt
// обходил их в порядке значений.

const keySep = 0x00

func encodeTime(t time.Time) []byte {
	b := make([]byte, 8)
	ns := t.UnixNano()
	if ns < 0 {
		ns = 0
	}
	binary.BigEndian.PutUint64(b, uint64(ns))
	return b
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// compositeKey joins parts into one index key
func compositeKey(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	key := make([]byte, 0, n)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

// stringPrefix encodes a variable-length string followed by the separator
func stringPrefix(s string) []byte {
	return append([]byte(s), keySep)
}

func boolByte(v bool) []byte {
	if v {
		return []byte{'1'}
	}
	return []byte{'0'}
}
