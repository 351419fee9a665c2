package account

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/n0ct4/secure-bank-final/internal/codec"
	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/yanun0323/errors"
)

// RecordFile is the fixed-width binary account file. All writes go through
// one mutex, so Persist calls from the drainer and the shutdown drain never
// interleave.
type RecordFile struct {
	path string

	mu  sync.Mutex
	buf []byte
}

// NewRecordFile binds to path without touching the disk.
func NewRecordFile(path string) *RecordFile {
	return &RecordFile{path: path, buf: make([]byte, codec.AccountRecordSize)}
}

func (f *RecordFile) Path() string {
	return f.path
}

// Persist writes a over the record with the same number, or appends it when
// no such record exists. The file is created if missing.
func (f *RecordFile) Persist(a Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open account file %s", f.path)
	}

	offset, err := f.locate(file, a.Number)
	if err != nil {
		_ = file.Close()
		return err
	}

	payload := codec.EncodeAccount(f.buf, a.Record())
	n, err := file.WriteAt(payload, offset)
	if err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "write account %d", a.Number)
	}
	if n != len(payload) {
		_ = file.Close()
		return errors.Wrapf(exception.ErrRecordShortWrite, "account: %d, wrote: %d", a.Number, n)
	}
	return file.Close()
}

// locate returns the offset of the record for number, or the offset right
// after the last complete record. A trailing partial record is overwritten.
func (f *RecordFile) locate(file *os.File, number int32) (int64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat account file")
	}
	count := info.Size() / codec.AccountRecordSize

	var head [4]byte
	for i := int64(0); i < count; i++ {
		offset := i * codec.AccountRecordSize
		if _, err := file.ReadAt(head[:], offset); err != nil {
			return 0, errors.Wrap(err, "scan account file")
		}
		if n, _ := codec.RecordNumber(head[:]); n == number {
			return offset, nil
		}
	}
	return count * codec.AccountRecordSize, nil
}

// ReadAll decodes every complete record in file order. Trailing partial
// records are ignored.
func (f *RecordFile) ReadAll() ([]codec.AccountRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, errors.Wrapf(err, "read account file %s", f.path)
	}
	records := make([]codec.AccountRecord, 0, len(data)/codec.AccountRecordSize)
	for len(data) >= codec.AccountRecordSize {
		rec, _ := codec.DecodeAccount(data[:codec.AccountRecordSize])
		records = append(records, rec)
		data = data[codec.AccountRecordSize:]
	}
	return records, nil
}

// WriteAll replaces the file with accounts in the given order.
func (f *RecordFile) WriteAll(accounts []Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create dir %s", dir)
		}
	}
	data := make([]byte, 0, len(accounts)*codec.AccountRecordSize)
	for _, a := range accounts {
		data = append(data, codec.EncodeAccount(f.buf, a.Record())...)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write account file %s", f.path)
	}
	return nil
}
