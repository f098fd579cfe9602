// Package dyncfg talks to the dataplane's dynamic configuration socket.
//
// Every exchange is one request frame followed by one response frame over
// a fresh unix stream connection. A frame is a 2-byte big-endian length
// followed by exactly that many payload bytes.
package dyncfg

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
)

const (
	// HeaderLen is the size of the frame length prefix.
	HeaderLen = 2

	// MaxMessageLen is the largest payload a single frame may carry.
	MaxMessageLen = 1<<16 - 2
)

// SizeError reports a script that does not fit in one frame.
type SizeError struct {
	Script string
	Size   int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("script '%s' too large: %d > %d", e.Script, e.Size, MaxMessageLen)
}

// IOError wraps a filesystem or socket failure during an exchange.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("i/o error: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// EncodeFrame prefixes payload with its length.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxMessageLen {
		return nil, &SizeError{Size: int64(len(payload))}
	}
	frame := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint16(frame[:HeaderLen], uint16(len(payload)))
	copy(frame[HeaderLen:], payload)
	return frame, nil
}

// ReadFrame reads a single length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Client sends configuration scripts to the dataplane.
type Client struct {
	Socket string
}

// New returns a client for the unix socket at path.
func New(socket string) *Client {
	return &Client{Socket: socket}
}

// Send transmits the script stored at path and returns the dataplane's
// textual response. The size limit is checked before the socket is
// touched.
func (c *Client) Send(ctx context.Context, path string) (string, error) {
	slog.Debug("sending script", "script", path, "socket", c.Socket)

	f, err := os.Open(path)
	if err != nil {
		return "", &IOError{Op: "open script", Err: err}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", &IOError{Op: "stat script", Err: err}
	}
	if fi.Size() > MaxMessageLen {
		return "", &SizeError{Script: path, Size: fi.Size()}
	}

	payload := make([]byte, fi.Size())
	if _, err := io.ReadFull(f, payload); err != nil {
		return "", &IOError{Op: "read script", Err: err}
	}
	return c.SendBytes(ctx, path, payload)
}

// SendBytes transmits payload; name identifies it in errors.
func (c *Client) SendBytes(ctx context.Context, name string, payload []byte) (string, error) {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return "", &SizeError{Script: name, Size: int64(len(payload))}
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.Socket)
	if err != nil {
		return "", &IOError{Op: "connect", Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return "", &IOError{Op: "set deadline", Err: err}
		}
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.Write(frame); err != nil {
		return "", ioError(ctx, "write request", err)
	}
	resp, err := ReadFrame(conn)
	if err != nil {
		return "", ioError(ctx, "read response", err)
	}
	return strings.ToValidUTF8(string(resp), "�"), nil
}

// ioError reports the context's error instead of the one the closed or
// expired connection produced when the context ended the exchange. The
// connection deadline can fire just before the context's own timer.
func ioError(ctx context.Context, op string, err error) *IOError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else if errors.Is(err, os.ErrDeadlineExceeded) {
		err = context.DeadlineExceeded
	}
	return &IOError{Op: op, Err: err}
}
