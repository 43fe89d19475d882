// Package protocol owns the SMGP 3.0 wire contract.
//
// Ownership boundary:
// - fixed 12-byte header and request identifiers
// - typed message bodies and their encode/decode
// - report content, message content charsets and long-message segmentation
//
// Framing (length prefix splitting) lives in protocol/frame and optional
// parameters in protocol/tlv.
package protocol
