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
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// Conn is the subset of *nats.Conn the meter needs, for dependency injection
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Flush() error
	Close()
}

// ConnAdapter adapts *nats.Conn to the Conn interface
type ConnAdapter struct {
	conn *nats.Conn
}

func NewConnAdapter(conn *nats.Conn) *ConnAdapter {
	return &ConnAdapter{conn: conn}
}

func (c *ConnAdapter) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

func (c *ConnAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return c.conn.Subscribe(subject, cb)
}

func (c *ConnAdapter) Flush() error {
	return c.conn.FlushTimeout(time.Second)
}

func (c *ConnAdapter) Close() {
	c.conn.Close()
}

// Connect dials natsURL, retrying a few times before giving up
func Connect(natsURL, clientName string, logger *zap.Logger) (*ConnAdapter, error) {
	var nc *nats.Conn
	var err error

	for i := 0; i < connectAttempts; i++ {
		nc, err = nats.Connect(natsURL,
			nats.Name(clientName),
			nats.Timeout(2*time.Second),
		)
		if err == nil {
			break
		}
		logger.Warn("⚠️  Failed to connect to NATS",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", connectAttempts),
			zap.Error(err))
		if i < connectAttempts-1 {
			time.Sleep(connectDelay)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", connectAttempts, err)
	}

	logger.Info("✅ Connected to NATS", zap.String("url", natsURL))
	return NewConnAdapter(nc), nil
}
