// Package reader acquires card UIDs from a PC/SC NFC reader.
package reader

import "context"

// Reader blocks until a card is presented and returns its UID as an
// uppercase hex string.  Errors are transient; the caller should log,
// back off briefly and poll again.
type Reader interface {
	Poll(ctx context.Context) (string, error)
}
