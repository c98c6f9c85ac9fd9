// Package chainerr defines the node's error taxonomy.
package chainerr

import "errors"

var (
	ErrCancelled             = errors.New("cancelled")
	ErrWouldBlock            = errors.New("would block")
	ErrEndOfStream           = errors.New("unexpected end of stream")
	ErrTransactionTooLarge   = errors.New("transaction too large")
	ErrUnknownTag            = errors.New("unknown tag")
	ErrUnexpectedPacket      = errors.New("unexpected packet")
	ErrUnexpectedTag         = errors.New("unexpected tag")
	ErrMessageSizeTooSmall   = errors.New("message size too small")
	ErrMessageSizeTooLarge   = errors.New("message size too large")
	ErrSignatureInvalid      = errors.New("signature invalid")
	ErrSystemResources       = errors.New("system resources exhausted")
	ErrConnectionResetByPeer = errors.New("connection reset by peer")
)
