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
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

type publishedMessage struct {
	subject string
	data    []byte
}

// MockNATSConnection records publishes and delivers them to matching subscribers
type MockNATSConnection struct {
	mu          sync.RWMutex
	subscribers map[string][]nats.MsgHandler
	published   []publishedMessage
	connected   bool
	errors      map[string]error
	publishErr  error
	flushes     int
}

func NewMockNATSConnection() *MockNATSConnection {
	return &MockNATSConnection{
		subscribers: make(map[string][]nats.MsgHandler),
		connected:   true,
		errors:      make(map[string]error),
	}
}

func (m *MockNATSConnection) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, nats.ErrConnectionClosed
	}
	if err, exists := m.errors[subject]; exists {
		return nil, err
	}

	m.subscribers[subject] = append(m.subscribers[subject], handler)
	return &nats.Subscription{}, nil
}

func (m *MockNATSConnection) Publish(subject string, data []byte) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nats.ErrConnectionClosed
	}
	if m.publishErr != nil {
		err := m.publishErr
		m.mu.Unlock()
		return err
	}
	m.published = append(m.published, publishedMessage{subject: subject, data: append([]byte(nil), data...)})
	m.mu.Unlock()

	m.Deliver(subject, data)
	return nil
}

// Deliver hands data to every subscriber whose pattern matches subject,
// synchronously so tests observe the result immediately.
func (m *MockNATSConnection) Deliver(subject string, data []byte) {
	m.mu.RLock()
	var handlers []nats.MsgHandler
	for pattern, hs := range m.subscribers {
		if subjectMatches(pattern, subject) {
			handlers = append(handlers, hs...)
		}
	}
	m.mu.RUnlock()

	for _, handler := range handlers {
		handler(&nats.Msg{Subject: subject, Data: data})
	}
}

func (m *MockNATSConnection) Published() []publishedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]publishedMessage(nil), m.published...)
}

func (m *MockNATSConnection) SetError(subject string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[subject] = err
}

func (m *MockNATSConnection) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

func (m *MockNATSConnection) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *MockNATSConnection) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MockNATSConnection) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// subjectMatches supports the single-token "*" wildcard
func subjectMatches(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	if len(pt) != len(st) {
		return false
	}
	for i := range pt {
		if pt[i] != "*" && pt[i] != st[i] {
			return false
		}
	}
	return true
}
