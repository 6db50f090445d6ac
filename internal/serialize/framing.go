// Package serialize implements the wire format set of spec §4.B: one
// implementation per protocol (JSON, MessagePack, CBOR), each able to
// encode/decode a Message envelope, estimate its size, and optionally
// compress it. Framing is grounded on the length-prefixed envelope
// idiom used across the teacher's pkg/websocket client for binary
// frames, generalized to carry a structured header instead of a bare
// length.
package serialize

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

// CompressionType names the streaming compressor used, if any.
type CompressionType string

const (
	CompressionNone    CompressionType = "none"
	CompressionGzip    CompressionType = "gzip"
	CompressionDeflate CompressionType = "deflate"
)

// FrameHeader precedes the payload on telemetry-specific codepaths
// (spec §4.B): a 4-byte little-endian length followed by UTF-8 JSON.
type FrameHeader struct {
	Version         int             `json:"version"`
	Protocol        model.Protocol  `json:"protocol"`
	Compressed      bool            `json:"compressed"`
	CompressionType CompressionType `json:"compressionType,omitempty"`
	SchemaID        string          `json:"schemaId,omitempty"`
	Timestamp       int64           `json:"timestamp"`
	Checksum        uint32          `json:"checksum,omitempty"`
}

const FrameHeaderVersion = 1

// EncodeFrame prefixes payload with its header, length-delimited.
func EncodeFrame(header FrameHeader, payload []byte) ([]byte, error) {
	header.Version = FrameHeaderVersion
	if header.Checksum == 0 {
		header.Checksum = crc32.ChecksumIEEE(payload)
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("serialize: marshal frame header: %w", err)
	}

	buf := make([]byte, 4+len(headerBytes)+len(payload))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(headerBytes)))
	copy(buf[4:], headerBytes)
	copy(buf[4+len(headerBytes):], payload)
	return buf, nil
}

// DecodeFrame splits a framed buffer back into its header and payload.
func DecodeFrame(buf []byte) (FrameHeader, []byte, error) {
	var header FrameHeader
	if len(buf) < 4 {
		return header, nil, fmt.Errorf("serialize: frame too short")
	}
	headerLen := binary.LittleEndian.Uint32(buf[:4])
	if int(4+headerLen) > len(buf) {
		return header, nil, fmt.Errorf("serialize: frame header length exceeds buffer")
	}

	if err := json.Unmarshal(buf[4:4+headerLen], &header); err != nil {
		return header, nil, fmt.Errorf("serialize: unmarshal frame header: %w", err)
	}

	payload := buf[4+headerLen:]
	if header.Checksum != 0 && crc32.ChecksumIEEE(payload) != header.Checksum {
		return header, nil, fmt.Errorf("serialize: checksum mismatch")
	}
	return header, payload, nil
}
