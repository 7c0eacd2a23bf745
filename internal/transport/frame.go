// Package transport implements the wire protocol peers use to exchange
// handshakes, entry metadata, requests, and file payloads: a fixed header
// followed by a JSON body, one message per connection. It never touches the
// entry store directly, only the injected *entrymgr.Manager.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Kind identifies the message carried by a frame.
type Kind uint8

const (
	// KindHandshakeSyn opens a handshake; the sender wants to sync.
	KindHandshakeSyn Kind = 1
	// KindHandshakeAck answers a Syn.
	KindHandshakeAck Kind = 2
	// KindMetadata announces a single entry's current record.
	KindMetadata Kind = 3
	// KindRequest asks the peer to transfer the named entry's bytes.
	KindRequest Kind = 4
	// KindTransfer carries an entry's record plus its file content.
	KindTransfer Kind = 5
)

func (k Kind) String() string {
	switch k {
	case KindHandshakeSyn:
		return "HandshakeSyn"
	case KindHandshakeAck:
		return "HandshakeAck"
	case KindMetadata:
		return "Metadata"
	case KindRequest:
		return "Request"
	case KindTransfer:
		return "Transfer"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Frame is a single decoded wire message: 16-byte sender peer id, 1-byte
// kind, then a kind-dependent body. Handshake/Metadata/Request bodies are
// JSON only; Transfer carries JSON plus a raw payload.
type Frame struct {
	SenderID uuid.UUID
	Kind     Kind
	JSON     []byte
	Payload  []byte
}

// WriteFrame writes f to w in the on-wire format: 16-byte sender id, 1-byte
// kind, u32 json length, json bytes, and — for Transfer only — a u64
// payload length followed by the payload bytes.
func WriteFrame(w io.Writer, f Frame) error {
	header := make([]byte, 17)
	idBytes, err := f.SenderID.MarshalBinary()
	if err != nil {
		return fmt.Errorf("transport: marshaling sender id: %w", err)
	}
	copy(header[:16], idBytes)
	header[16] = byte(f.Kind)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("transport: writing frame header: %w", err)
	}

	if err := writeLengthPrefixed(w, f.JSON); err != nil {
		return fmt.Errorf("transport: writing json body: %w", err)
	}

	if f.Kind == KindTransfer {
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(f.Payload)))

		if _, err := w.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("transport: writing payload length: %w", err)
		}

		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("transport: writing payload: %w", err)
		}
	}

	return nil
}

func writeLengthPrefixed(w io.Writer, body []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}

	_, err := w.Write(body)

	return err
}

// ReadFrame reads and decodes a single Frame from r. A connection carries
// exactly one frame; the caller closes the connection after reading it.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, 17)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, fmt.Errorf("transport: reading frame header: %w", err)
	}

	senderID, err := uuid.FromBytes(header[:16])
	if err != nil {
		return Frame{}, fmt.Errorf("transport: decoding sender id: %w", err)
	}

	f := Frame{SenderID: senderID, Kind: Kind(header[16])}

	jsonBody, err := readLengthPrefixed(r, maxJSONBodyBytes)
	if err != nil {
		return Frame{}, fmt.Errorf("transport: reading json body: %w", err)
	}
	f.JSON = jsonBody

	if f.Kind == KindTransfer {
		var lenBuf [8]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return Frame{}, fmt.Errorf("transport: reading payload length: %w", err)
		}

		payloadLen := binary.BigEndian.Uint64(lenBuf[:])
		if payloadLen > maxPayloadBytes {
			return Frame{}, fmt.Errorf("transport: payload length %d exceeds limit", payloadLen)
		}

		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("transport: reading payload: %w", err)
		}
		f.Payload = payload
	}

	return f, nil
}

// maxJSONBodyBytes and maxPayloadBytes bound frame sizes so a malformed or
// hostile peer cannot force an unbounded allocation from a length prefix.
const (
	maxJSONBodyBytes = 16 << 20  // 16 MiB: generous for a full handshake inventory
	maxPayloadBytes  = 1 << 40   // 1 TiB: effectively unbounded for LAN file sync
)

func readLengthPrefixed(r io.Reader, max uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > max {
		return nil, fmt.Errorf("length %d exceeds limit %d", n, max)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	return body, nil
}
