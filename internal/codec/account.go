package codec

import (
	"encoding/binary"
	"math"
)

const (
	HolderSize        = 100
	AccountRecordSize = 4 + HolderSize + 4 + 4 + 4 + 4

	offNumber  = 0
	offHolder  = 4
	offBalance = offHolder + HolderSize
	offPIN     = offBalance + 4
	offTxCount = offPIN + 4
	offLocked  = offTxCount + 4
)

// AccountRecord is the on-disk shape of one account.
type AccountRecord struct {
	Number           int32
	Holder           string
	Balance          float32
	PIN              int32
	TransactionCount int32
	Locked           bool
}

// Valid reports whether the record passes load-time validation.
func (r AccountRecord) Valid() bool {
	return r.Number > 0 && len(r.Holder) != 0
}

// EncodeAccount serializes a record into a fixed-size payload.
// Holders longer than HolderSize-1 bytes are truncated so the field stays
// null-terminated.
func EncodeAccount(dst []byte, r AccountRecord) []byte {
	if cap(dst) < AccountRecordSize {
		dst = make([]byte, AccountRecordSize)
	} else {
		dst = dst[:AccountRecordSize]
	}

	binary.LittleEndian.PutUint32(dst[offNumber:offHolder], uint32(r.Number))
	holder := dst[offHolder:offBalance]
	n := copy(holder[:HolderSize-1], r.Holder)
	clear(holder[n:])
	binary.LittleEndian.PutUint32(dst[offBalance:offPIN], math.Float32bits(r.Balance))
	binary.LittleEndian.PutUint32(dst[offPIN:offTxCount], uint32(r.PIN))
	binary.LittleEndian.PutUint32(dst[offTxCount:offLocked], uint32(r.TransactionCount))
	var locked uint32
	if r.Locked {
		locked = 1
	}
	binary.LittleEndian.PutUint32(dst[offLocked:AccountRecordSize], locked)

	return dst
}

// DecodeAccount parses a fixed-size account payload.
func DecodeAccount(src []byte) (AccountRecord, bool) {
	if len(src) < AccountRecordSize {
		return AccountRecord{}, false
	}
	holder := src[offHolder:offBalance]
	end := 0
	for end < len(holder) && holder[end] != 0 {
		end++
	}
	return AccountRecord{
		Number:           int32(binary.LittleEndian.Uint32(src[offNumber:offHolder])),
		Holder:           string(holder[:end]),
		Balance:          math.Float32frombits(binary.LittleEndian.Uint32(src[offBalance:offPIN])),
		PIN:              int32(binary.LittleEndian.Uint32(src[offPIN:offTxCount])),
		TransactionCount: int32(binary.LittleEndian.Uint32(src[offTxCount:offLocked])),
		Locked:           binary.LittleEndian.Uint32(src[offLocked:AccountRecordSize]) != 0,
	}, true
}

// RecordNumber reads only the account number of an encoded record.
func RecordNumber(src []byte) (int32, bool) {
	if len(src) < offHolder {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(src[offNumber:offHolder])), true
}
