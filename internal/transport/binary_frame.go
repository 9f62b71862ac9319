/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

// Telemetry frames published by the loopback meter. Each frame is a fixed
// big-endian header followed by a type-specific payload.

// FrameType identifies the payload carried by a frame
type FrameType uint8

const (
	FrameTypeLevel       FrameType = 0x01
	FrameTypeStreamStart FrameType = 0x02
	FrameTypeStreamStop  FrameType = 0x03

	FrameTypeStreamError FrameType = 0x12
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeLevel:
		return "level"
	case FrameTypeStreamStart:
		return "stream-start"
	case FrameTypeStreamStop:
		return "stream-stop"
	case FrameTypeStreamError:
		return "stream-error"
	default:
		return fmt.Sprintf("unknown(0x%02X)", uint8(t))
	}
}

// Frame is one telemetry message
type Frame struct {
	Type      FrameType
	SessionID uint32
	Sequence  uint32
	Timestamp uint64 // Unix microseconds
	Data      []byte
}

// FrameHeader is the fixed 24-byte wire header
type FrameHeader struct {
	Magic     uint32
	Type      FrameType
	Reserved  uint8
	Length    uint16
	SessionID uint32
	Sequence  uint32
	Timestamp uint64
}

const (
	FrameMagic = 0x4C4F4F50 // "LOOP"

	MaxFrameSize = 1024
	HeaderSize   = 24
	MaxDataSize  = MaxFrameSize - HeaderSize

	// LevelPayloadSize is the encoded size of a LevelPayload
	LevelPayloadSize = 8 + 8 + 8 + 1
)

// NewFrame stamps a frame with the given wall-clock time
func NewFrame(frameType FrameType, sessionID, sequence uint32, at time.Time, data []byte) *Frame {
	return &Frame{
		Type:      frameType,
		SessionID: sessionID,
		Sequence:  sequence,
		Timestamp: uint64(at.UnixMicro()), //nolint:gosec // G115: wall-clock time is after the epoch
		Data:      data,
	}
}

// Time returns the frame timestamp as a time.Time
func (f *Frame) Time() time.Time {
	return time.UnixMicro(int64(f.Timestamp)) //nolint:gosec // G115: produced by NewFrame
}

// Serialize converts a frame to its wire form
func (f *Frame) Serialize() ([]byte, error) {
	if len(f.Data) > MaxDataSize {
		return nil, fmt.Errorf("frame data too large: %d bytes (max %d)", len(f.Data), MaxDataSize)
	}

	header := FrameHeader{
		Magic:     FrameMagic,
		Type:      f.Type,
		Length:    uint16(len(f.Data)), //nolint:gosec // G115: bounded by MaxDataSize above
		SessionID: f.SessionID,
		Sequence:  f.Sequence,
		Timestamp: f.Timestamp,
	}

	buf := bytes.NewBuffer(make([]byte, 0, f.Size()))
	if err := binary.Write(buf, binary.BigEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write frame header: %w", err)
	}
	buf.Write(f.Data)

	return buf.Bytes(), nil
}

// DeserializeFrame parses a complete frame
func DeserializeFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("frame too small: %d bytes (min %d)", len(data), HeaderSize)
	}

	header, err := parseFrameHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}

	expectedSize := HeaderSize + int(header.Length)
	if len(data) != expectedSize {
		return nil, fmt.Errorf("frame size mismatch: got %d bytes, expected %d", len(data), expectedSize)
	}

	frame := &Frame{
		Type:      header.Type,
		SessionID: header.SessionID,
		Sequence:  header.Sequence,
		Timestamp: header.Timestamp,
	}
	if header.Length > 0 {
		frame.Data = append([]byte(nil), data[HeaderSize:]...)
	}

	return frame, nil
}

func parseFrameHeader(headerData []byte) (*FrameHeader, error) {
	if len(headerData) != HeaderSize {
		return nil, fmt.Errorf("invalid header size: %d bytes (expected %d)", len(headerData), HeaderSize)
	}

	var header FrameHeader
	if err := binary.Read(bytes.NewReader(headerData), binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	if header.Magic != FrameMagic {
		return nil, fmt.Errorf("invalid frame magic: 0x%08X (expected 0x%08X)", header.Magic, FrameMagic)
	}
	if header.Length > MaxDataSize {
		return nil, fmt.Errorf("frame data too large: %d bytes (max %d)", header.Length, MaxDataSize)
	}

	return &header, nil
}

// Size returns the total serialized size of the frame
func (f *Frame) Size() int {
	return HeaderSize + len(f.Data)
}

// LevelPayload is the body of a FrameTypeLevel frame
type LevelPayload struct {
	Percent      float64
	Amplitude    float64
	TotalSamples uint64
	BarLength    uint8
}

func EncodeLevel(p LevelPayload) []byte {
	data := make([]byte, LevelPayloadSize)
	binary.BigEndian.PutUint64(data[0:8], math.Float64bits(p.Percent))
	binary.BigEndian.PutUint64(data[8:16], math.Float64bits(p.Amplitude))
	binary.BigEndian.PutUint64(data[16:24], p.TotalSamples)
	data[24] = p.BarLength
	return data
}

func DecodeLevel(data []byte) (LevelPayload, error) {
	if len(data) != LevelPayloadSize {
		return LevelPayload{}, fmt.Errorf("invalid level payload: %d bytes (expected %d)", len(data), LevelPayloadSize)
	}
	return LevelPayload{
		Percent:      math.Float64frombits(binary.BigEndian.Uint64(data[0:8])),
		Amplitude:    math.Float64frombits(binary.BigEndian.Uint64(data[8:16])),
		TotalSamples: binary.BigEndian.Uint64(data[16:24]),
		BarLength:    data[24],
	}, nil
}

// EncodeText fits a message into a frame payload, truncating if needed.
// Used by stream-start and stream-error frames.
func EncodeText(msg string) []byte {
	if len(msg) > MaxDataSize {
		msg = msg[:MaxDataSize]
		for !utf8.ValidString(msg) {
			msg = msg[:len(msg)-1]
		}
	}
	return []byte(msg)
}
