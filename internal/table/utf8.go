package table

import "unicode/utf8"

// sanitizeUTF8 converts a raw tag value to a string, replacing each invalid
// byte with U+FFFD. Parquet UTF8 columns must hold valid text and older PGN
// dumps are not always UTF-8 (Latin-1 player names are common).
//
// Valid input, the common case, costs one validation pass and one copy.
func sanitizeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	result := make([]byte, 0, len(b)+len(b)/8)
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			result = append(result, '\xef', '\xbf', '\xbd')
			i++
		} else {
			result = append(result, b[i:i+size]...)
			i += size
		}
	}
	return string(result)
}
