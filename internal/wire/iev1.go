// Package wire implements IEv1, the fixed-header, checksummed binary
// encoding of a single Operation (§4.5).
package wire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"image-processor/internal/domain"
)

const (
	headerSize = 12
	version1   = uint16(1)
)

// Encode produces the IEv1 byte representation of op. The operation is
// assumed already valid; callers validate before encoding.
func Encode(op domain.Operation) ([]byte, error) {
	payload, err := payloadFor(op)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], version1)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(op.Type()))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[8:12], crc32.ChecksumIEEE(payload))
	copy(buf[headerSize:], payload)
	return buf, nil
}

// Decode verifies the header and checksum, then reconstructs the Operation.
// Any structural mismatch returns a domain.ErrProtocol. The decoded
// operation still undergoes Validate() by the caller (§4.5 decode contract).
func Decode(b []byte) (domain.Operation, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: message shorter than header (%d bytes)", domain.ErrProtocol, len(b))
	}

	ver := binary.LittleEndian.Uint16(b[0:2])
	if ver != version1 {
		return nil, fmt.Errorf("%w: unsupported version %d", domain.ErrProtocol, ver)
	}

	opType := domain.OperationType(binary.LittleEndian.Uint16(b[2:4]))
	payloadLen := binary.LittleEndian.Uint32(b[4:8])
	wantCRC := binary.LittleEndian.Uint32(b[8:12])

	if int(payloadLen) > len(b)-headerSize {
		return nil, fmt.Errorf("%w: payload_len %d exceeds available bytes %d", domain.ErrProtocol, payloadLen, len(b)-headerSize)
	}

	payload := b[headerSize : headerSize+int(payloadLen)]
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return nil, fmt.Errorf("%w: crc32 mismatch", domain.ErrProtocol)
	}

	return opFromPayload(opType, payload)
}

func payloadFor(op domain.Operation) ([]byte, error) {
	switch v := op.(type) {
	case domain.RotateOp:
		// One byte of quarter turns (1, 2, 3 for 90, 180, 270): 270 does not
		// fit in a byte as a plain degree count.
		return []byte{byte(v.Degrees / 90)}, nil
	case domain.FlipOp:
		var b byte
		if v.Horizontal {
			b |= 1 << 0
		}
		if v.Vertical {
			b |= 1 << 1
		}
		return []byte{b}, nil
	case domain.ResizeOp:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint32(buf[0:4], uint32(v.Width))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(v.Height))
		return buf, nil
	case domain.CompressOp:
		return []byte{byte(v.Quality)}, nil
	default:
		return nil, fmt.Errorf("%w: unencodable operation type %T", domain.ErrProtocol, op)
	}
}

func opFromPayload(t domain.OperationType, payload []byte) (domain.Operation, error) {
	switch t {
	case domain.OpRotate:
		if len(payload) != 1 {
			return nil, fmt.Errorf("%w: rotate payload must be 1 byte, got %d", domain.ErrProtocol, len(payload))
		}
		return domain.RotateOp{Degrees: int(payload[0]) * 90}, nil
	case domain.OpFlip:
		if len(payload) != 1 {
			return nil, fmt.Errorf("%w: flip payload must be 1 byte, got %d", domain.ErrProtocol, len(payload))
		}
		return domain.FlipOp{
			Horizontal: payload[0]&(1<<0) != 0,
			Vertical:   payload[0]&(1<<1) != 0,
		}, nil
	case domain.OpResize:
		if len(payload) != 8 {
			return nil, fmt.Errorf("%w: resize payload must be 8 bytes, got %d", domain.ErrProtocol, len(payload))
		}
		return domain.ResizeOp{
			Width:  int(binary.LittleEndian.Uint32(payload[0:4])),
			Height: int(binary.LittleEndian.Uint32(payload[4:8])),
		}, nil
	case domain.OpCompress:
		if len(payload) != 1 {
			return nil, fmt.Errorf("%w: compress payload must be 1 byte, got %d", domain.ErrProtocol, len(payload))
		}
		return domain.CompressOp{Quality: int(payload[0])}, nil
	default:
		return nil, fmt.Errorf("%w: unknown op_type %d", domain.ErrProtocol, t)
	}
}
