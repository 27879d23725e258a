package sync

import (
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// NewTextReader decodes downloaded export content as UTF-8.
// Byte sequences that are not valid UTF-8 are dropped and a leading byte order mark is removed.
func NewTextReader(r io.Reader) io.Reader {
	return transform.NewReader(r, transform.Chain(dropInvalidUTF8{}, unicode.BOMOverride(transform.Nop)))
}

// dropInvalidUTF8 is a transform.Transformer that removes invalid UTF-8 bytes and copies everything else.
type dropInvalidUTF8 struct {
	transform.NopResetter
}

func (dropInvalidUTF8) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		if c := src[nSrc]; c < utf8.RuneSelf {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = c
			nDst++
			nSrc++
			continue
		}
		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size <= 1 {
			// an incomplete sequence may be completed by the next chunk
			if !atEOF && !utf8.FullRune(src[nSrc:]) {
				return nDst, nSrc, transform.ErrShortSrc
			}
			nSrc++
			continue
		}
		if nDst+size > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], src[nSrc:nSrc+size])
		nSrc += size
	}
	return nDst, nSrc, nil
}
