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
	"strings"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-loopback-go/internal/meter"
	"github.com/loqalabs/loqa-loopback-go/internal/transport"
)

// Event is a decoded frame received from one meter
type Event struct {
	MeterID string
	Frame   *transport.Frame
}

// Report converts a level frame back into a meter report
func (e Event) Report() (meter.Report, error) {
	if e.Frame.Type != transport.FrameTypeLevel {
		return meter.Report{}, fmt.Errorf("not a level frame: %s", e.Frame.Type)
	}
	payload, err := transport.DecodeLevel(e.Frame.Data)
	if err != nil {
		return meter.Report{}, err
	}
	return meter.Report{
		Amplitude:    payload.Amplitude,
		Percent:      payload.Percent,
		BarLength:    int(payload.BarLength),
		TotalSamples: payload.TotalSamples,
		At:           e.Frame.Time(),
	}, nil
}

// LevelSubscriber receives frames from every meter publishing under a subject
type LevelSubscriber struct {
	conn    Conn
	subject string
	events  chan Event
	dropped atomic.Uint64
	logger  *zap.Logger
}

// NewLevelSubscriber connects to natsURL and creates a subscriber
func NewLevelSubscriber(natsURL, subject string, capacity int, logger *zap.Logger) (*LevelSubscriber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := Connect(natsURL, "loqa-loopback-watch", logger)
	if err != nil {
		return nil, err
	}
	return NewLevelSubscriberWithConnection(conn, subject, capacity, logger), nil
}

// NewLevelSubscriberWithConnection creates a subscriber over an existing connection (for testing)
func NewLevelSubscriberWithConnection(conn Conn, subject string, capacity int, logger *zap.Logger) *LevelSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LevelSubscriber{
		conn:    conn,
		subject: subject,
		events:  make(chan Event, capacity),
		logger:  logger,
	}
}

// Start subscribes to <subject>.* so every meter is received
func (s *LevelSubscriber) Start() error {
	topic := s.subject + ".*"
	if _, err := s.conn.Subscribe(topic, s.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	s.logger.Info("🎧 Subscribed to level frames", zap.String("subject", topic))
	return nil
}

func (s *LevelSubscriber) handleMessage(msg *nats.Msg) {
	frame, err := transport.DeserializeFrame(msg.Data)
	if err != nil {
		s.logger.Warn("❌ Failed to decode level frame", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}

	meterID := msg.Subject[strings.LastIndexByte(msg.Subject, '.')+1:]

	select {
	case s.events <- Event{MeterID: meterID, Frame: frame}:
	default:
		s.dropped.Add(1)
		s.logger.Debug("⚠️  Event channel full, dropping frame", zap.String("meter_id", meterID))
	}
}

func (s *LevelSubscriber) Events() <-chan Event {
	return s.events
}

// Dropped returns how many frames were discarded because the consumer lagged
func (s *LevelSubscriber) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *LevelSubscriber) Close() {
	if s.conn != nil {
		s.conn.Close()
		s.logger.Debug("🔌 NATS connection closed")
	}
}
