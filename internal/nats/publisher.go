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

package nats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-loopback-go/internal/audio"
	"github.com/loqalabs/loqa-loopback-go/internal/meter"
	"github.com/loqalabs/loqa-loopback-go/internal/transport"
)

// LevelPublisher publishes level reports and stream events as binary
// frames on <subject>.<meterID>. Samples are never published.
type LevelPublisher struct {
	conn      Conn
	subject   string
	meterID   string
	sessionID uint32
	sequence  atomic.Uint32
	now       func() time.Time
	logger    *zap.Logger
}

// NewLevelPublisher connects to natsURL and creates a publisher. An empty
// meterID is replaced with a random one.
func NewLevelPublisher(natsURL, subject, meterID string, logger *zap.Logger) (*LevelPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := Connect(natsURL, "loqa-loopback", logger)
	if err != nil {
		return nil, err
	}
	return NewLevelPublisherWithConnection(conn, subject, meterID, logger), nil
}

// NewLevelPublisherWithConnection creates a publisher over an existing connection (for testing)
func NewLevelPublisherWithConnection(conn Conn, subject, meterID string, logger *zap.Logger) *LevelPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if meterID == "" {
		meterID = uuid.NewString()
	}
	return &LevelPublisher{
		conn:      conn,
		subject:   fmt.Sprintf("%s.%s", subject, meterID),
		meterID:   meterID,
		sessionID: uuid.New().ID(),
		now:       time.Now,
		logger:    logger.With(zap.String("meter_id", meterID)),
	}
}

// Subject returns the subject frames are published on
func (p *LevelPublisher) Subject() string {
	return p.subject
}

func (p *LevelPublisher) MeterID() string {
	return p.meterID
}

func (p *LevelPublisher) SessionID() uint32 {
	return p.sessionID
}

// StreamStarted announces the selected device and configuration
func (p *LevelPublisher) StreamStarted(device audio.Device, config audio.StreamConfig) error {
	return p.publish(transport.FrameTypeStreamStart, p.now(),
		transport.EncodeText(fmt.Sprintf("%s %s", device.Name, config)))
}

// Report implements meter.Sink
func (p *LevelPublisher) Report(r meter.Report) error {
	barLength := r.BarLength
	if barLength < 0 {
		barLength = 0
	}
	payload := transport.LevelPayload{
		Percent:      r.Percent,
		Amplitude:    r.Amplitude,
		TotalSamples: r.TotalSamples,
		BarLength:    uint8(barLength), //nolint:gosec // G115: bar length is at most meter.BarWidth
	}
	return p.publish(transport.FrameTypeLevel, r.At, transport.EncodeLevel(payload))
}

// StreamError implements meter.StreamErrorSink
func (p *LevelPublisher) StreamError(err error) error {
	return p.publish(transport.FrameTypeStreamError, p.now(), transport.EncodeText(err.Error()))
}

// StreamStopped announces the end of the capture session
func (p *LevelPublisher) StreamStopped() error {
	return p.publish(transport.FrameTypeStreamStop, p.now(), nil)
}

func (p *LevelPublisher) publish(frameType transport.FrameType, at time.Time, data []byte) error {
	frame := transport.NewFrame(frameType, p.sessionID, p.sequence.Add(1)-1, at, data)
	encoded, err := frame.Serialize()
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", frameType, err)
	}
	if err := p.conn.Publish(p.subject, encoded); err != nil {
		return fmt.Errorf("failed to publish %s frame to %s: %w", frameType, p.subject, err)
	}
	return nil
}

// Close flushes pending frames and closes the connection
func (p *LevelPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Flush(); err != nil {
		p.logger.Warn("⚠️  Failed to flush NATS connection", zap.Error(err))
	}
	p.conn.Close()
	p.logger.Debug("🔌 NATS connection closed")
}
