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
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestFrameSerialization(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		frame *Frame
	}{
		{
			name:  "Empty stop frame",
			frame: NewFrame(FrameTypeStreamStop, 12345, 1, at, nil),
		},
		{
			name: "Level frame",
			frame: NewFrame(FrameTypeLevel, 67890, 42, at.Add(time.Second),
				EncodeLevel(LevelPayload{Percent: 37.5, Amplitude: 0.375, TotalSamples: 96000, BarLength: 7})),
		},
		{
			name:  "Stream start frame",
			frame: NewFrame(FrameTypeStreamStart, 1, 0, at, EncodeText("Speakers {format: f32, channels: 2, sample_rate: 48000}")),
		},
		{
			name:  "Maximum data size",
			frame: NewFrame(FrameTypeStreamError, 99999, 999, at, make([]byte, MaxDataSize)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serialized, err := tt.frame.Serialize()
			if err != nil {
				t.Fatalf("Serialize() error = %v", err)
			}
			if len(serialized) != tt.frame.Size() {
				t.Errorf("Serialized frame size = %d, want %d", len(serialized), tt.frame.Size())
			}

			deserialized, err := DeserializeFrame(serialized)
			if err != nil {
				t.Fatalf("DeserializeFrame() error = %v", err)
			}

			if deserialized.Type != tt.frame.Type {
				t.Errorf("Type = %v, want %v", deserialized.Type, tt.frame.Type)
			}
			if deserialized.SessionID != tt.frame.SessionID {
				t.Errorf("SessionID = %d, want %d", deserialized.SessionID, tt.frame.SessionID)
			}
			if deserialized.Sequence != tt.frame.Sequence {
				t.Errorf("Sequence = %d, want %d", deserialized.Sequence, tt.frame.Sequence)
			}
			if !deserialized.Time().Equal(tt.frame.Time()) {
				t.Errorf("Time = %v, want %v", deserialized.Time(), tt.frame.Time())
			}
			if !bytes.Equal(deserialized.Data, tt.frame.Data) {
				t.Errorf("Data mismatch. Got %v, want %v", deserialized.Data, tt.frame.Data)
			}
		})
	}
}

func TestSerializeRejectsOversizedData(t *testing.T) {
	frame := NewFrame(FrameTypeStreamError, 1, 1, time.Now(), make([]byte, MaxDataSize+1))
	if _, err := frame.Serialize(); err == nil {
		t.Fatal("Expected error for oversized frame")
	}
}

func TestFrameHeaderLayout(t *testing.T) {
	frame := NewFrame(FrameTypeLevel, 0x01020304, 0x0A0B0C0D, time.UnixMicro(0x1122334455), []byte{0xFF})
	data, err := frame.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	if got := binary.BigEndian.Uint32(data[0:4]); got != FrameMagic {
		t.Errorf("magic = 0x%08X, want 0x%08X", got, FrameMagic)
	}
	if string(data[0:4]) != "LOOP" {
		t.Errorf("magic bytes = %q, want LOOP", data[0:4])
	}
	if FrameType(data[4]) != FrameTypeLevel {
		t.Errorf("type byte = 0x%02X", data[4])
	}
	if got := binary.BigEndian.Uint16(data[6:8]); got != 1 {
		t.Errorf("length = %d, want 1", got)
	}
	if got := binary.BigEndian.Uint32(data[8:12]); got != 0x01020304 {
		t.Errorf("session = 0x%08X", got)
	}
	if got := binary.BigEndian.Uint32(data[12:16]); got != 0x0A0B0C0D {
		t.Errorf("sequence = 0x%08X", got)
	}
	if got := binary.BigEndian.Uint64(data[16:24]); got != 0x1122334455 {
		t.Errorf("timestamp = 0x%X", got)
	}
}

func TestFrameDeserialization_ErrorCases(t *testing.T) {
	valid, err := NewFrame(FrameTypeLevel, 1, 1, time.Now(), []byte("abc")).Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	badMagic := append([]byte(nil), valid...)
	binary.BigEndian.PutUint32(badMagic[0:4], 0x4C4F5141)

	oversized := append([]byte(nil), valid[:HeaderSize]...)
	binary.BigEndian.PutUint16(oversized[6:8], MaxDataSize+1)

	tests := []struct {
		name      string
		data      []byte
		errorText string
	}{
		{"Too small data", make([]byte, HeaderSize-1), "frame too small"},
		{"Invalid magic", badMagic, "invalid frame magic"},
		{"Truncated payload", valid[:len(valid)-1], "frame size mismatch"},
		{"Trailing bytes", append(append([]byte(nil), valid...), 0x00), "frame size mismatch"},
		{"Declared length too large", oversized, "frame data too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeserializeFrame(tt.data)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorText) {
				t.Errorf("Expected error containing %q, got %q", tt.errorText, err.Error())
			}
		})
	}
}

func TestLevelPayload(t *testing.T) {
	tests := []LevelPayload{
		{},
		{Percent: 100, Amplitude: 1.7, TotalSamples: math.MaxUint64, BarLength: 20},
		{Percent: 12.34, Amplitude: 0.1234, TotalSamples: 441000, BarLength: 2},
	}

	for _, want := range tests {
		data := EncodeLevel(want)
		if len(data) != LevelPayloadSize {
			t.Fatalf("encoded size = %d, want %d", len(data), LevelPayloadSize)
		}
		got, err := DecodeLevel(data)
		if err != nil {
			t.Fatalf("DecodeLevel() error = %v", err)
		}
		if got != want {
			t.Errorf("DecodeLevel() = %+v, want %+v", got, want)
		}
	}

	if _, err := DecodeLevel(make([]byte, LevelPayloadSize-1)); err == nil {
		t.Error("Expected error for short level payload")
	}
}

func TestEncodeText(t *testing.T) {
	if got := string(EncodeText("device disconnected")); got != "device disconnected" {
		t.Errorf("EncodeText() = %q", got)
	}

	long := strings.Repeat("é", MaxDataSize)
	data := EncodeText(long)
	if len(data) > MaxDataSize {
		t.Errorf("EncodeText() length = %d, want <= %d", len(data), MaxDataSize)
	}
	if !utf8.Valid(data) {
		t.Error("EncodeText() cut a rune in half")
	}
}

func TestFrameTypeString(t *testing.T) {
	tests := map[FrameType]string{
		FrameTypeLevel:       "level",
		FrameTypeStreamStart: "stream-start",
		FrameTypeStreamStop:  "stream-stop",
		FrameTypeStreamError: "stream-error",
		FrameType(0x7F):      "unknown(0x7F)",
	}
	for ft, want := range tests {
		if got := ft.String(); got != want {
			t.Errorf("FrameType(0x%02X).String() = %q, want %q", uint8(ft), got, want)
		}
	}
}
