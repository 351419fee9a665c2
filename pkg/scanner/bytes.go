package scanner

// Fields in the journal line formats look like "Key: value | Key: value".
// The helpers below locate a key, skip the colon and surrounding blanks, and
// read the value without allocating.

const fieldSep = '|'

// ScanIntField reads a signed decimal integer following key.
func ScanIntField(line []byte, key []byte) (int64, bool) {
	i, ok := valueStart(line, key)
	if !ok {
		return 0, false
	}
	neg := false
	if line[i] == '-' || line[i] == '+' {
		neg = line[i] == '-'
		i++
	}
	if i >= len(line) || !IsDigit(line[i]) {
		return 0, false
	}
	var v int64
	for i < len(line) && IsDigit(line[i]) {
		v = v*10 + int64(line[i]-'0')
		i++
	}
	if neg {
		v = -v
	}
	return v, true
}

// ScanTextField returns the value following key up to the next field
// separator or the end of the line, with surrounding blanks trimmed.
func ScanTextField(line []byte, key []byte) ([]byte, bool) {
	start, ok := valueStart(line, key)
	if !ok {
		return nil, false
	}
	end := start
	for end < len(line) && line[end] != fieldSep {
		end++
	}
	v := TrimSpace(line[start:end])
	if len(v) == 0 {
		return nil, false
	}
	return v, true
}

// ScanBracket returns the text between the first '[' and the following ']'.
func ScanBracket(line []byte) ([]byte, bool) {
	open := IndexByte(line, '[')
	if open < 0 {
		return nil, false
	}
	end := IndexByte(line[open+1:], ']')
	if end < 0 {
		return nil, false
	}
	return line[open+1 : open+1+end], true
}

func valueStart(line []byte, key []byte) (int, bool) {
	idx := IndexOf(line, key)
	if idx < 0 {
		return 0, false
	}
	i := idx + len(key)
	for i < len(line) && IsSpace(line[i]) {
		i++
	}
	if i >= len(line) || line[i] != ':' {
		return 0, false
	}
	i++
	for i < len(line) && IsSpace(line[i]) {
		i++
	}
	if i >= len(line) {
		return 0, false
	}
	return i, true
}

func IndexOf(payload []byte, key []byte) int {
	if len(key) == 0 || len(payload) < len(key) {
		return -1
	}
outer:
	for i := 0; i <= len(payload)-len(key); i++ {
		for j := 0; j < len(key); j++ {
			if payload[i+j] != key[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func IndexByte(payload []byte, b byte) int {
	for i := range payload {
		if payload[i] == b {
			return i
		}
	}
	return -1
}

func TrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && IsSpace(b[start]) {
		start++
	}
	for end > start && IsSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func IsSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func IsDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
