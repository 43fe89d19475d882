package protocol

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

func contentEncoding(format uint8) encoding.Encoding {
	switch format {
	case FormatUCS2:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case FormatGBK:
		return simplifiedchinese.GBK
	default:
		return nil
	}
}

// EncodeContent converts text into wire octets for format. Formats without a
// charset (ASCII, binary, write-card) are passed through unchanged.
func EncodeContent(format uint8, text string) ([]byte, error) {
	enc := contentEncoding(format)
	if enc == nil {
		return []byte(text), nil
	}
	out, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: encode content format=%d: %v", ErrInvalidField, format, err)
	}
	return out, nil
}

// DecodeContent converts wire octets for format into text.
func DecodeContent(format uint8, content []byte) (string, error) {
	enc := contentEncoding(format)
	if enc == nil {
		return string(content), nil
	}
	out, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return "", fmt.Errorf("%w: decode content format=%d: %v", ErrInvalidField, format, err)
	}
	return string(out), nil
}

// ParseFormat maps a format name (ascii, ucs2, gbk, binary) to its MsgFormat.
// An empty name is ASCII.
func ParseFormat(name string) (uint8, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ascii":
		return FormatASCII, nil
	case "ucs2":
		return FormatUCS2, nil
	case "gbk":
		return FormatGBK, nil
	case "binary":
		return FormatBinary, nil
	default:
		return 0, fmt.Errorf("%w: unknown format %q", ErrInvalidField, name)
	}
}
