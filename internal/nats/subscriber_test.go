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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/loqalabs/loqa-loopback-go/internal/meter"
	"github.com/loqalabs/loqa-loopback-go/internal/transport"
)

func TestLevelSubscriber_Start(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(*MockNATSConnection)
		expectError bool
	}{
		{
			name:      "successful_subscription",
			setupMock: func(m *MockNATSConnection) {},
		},
		{
			name: "subscription_failure",
			setupMock: func(m *MockNATSConnection) {
				m.SetError("loopback.levels.*", errors.New("permissions violation"))
			},
			expectError: true,
		},
		{
			name:        "disconnected",
			setupMock:   func(m *MockNATSConnection) { m.Close() },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := NewMockNATSConnection()
			tt.setupMock(conn)

			subscriber := NewLevelSubscriberWithConnection(conn, "loopback.levels", 4, nil)
			err := subscriber.Start()

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "loopback.levels.*")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLevelSubscriber_ReceivesPublishedLevels(t *testing.T) {
	conn := NewMockNATSConnection()
	subscriber := NewLevelSubscriberWithConnection(conn, "loopback.levels", 4, nil)
	require.NoError(t, subscriber.Start())

	desk := NewLevelPublisherWithConnection(conn, "loopback.levels", "desk", nil)
	studio := NewLevelPublisherWithConnection(conn, "loopback.levels", "studio", nil)

	at := time.Now().Truncate(time.Microsecond)
	require.NoError(t, desk.Report(meter.Report{Percent: 25, BarLength: 5, TotalSamples: 10, At: at}))
	require.NoError(t, studio.Report(meter.Report{Percent: 75, BarLength: 15, TotalSamples: 20, At: at}))

	got := map[string]meter.Report{}
	for i := 0; i < 2; i++ {
		select {
		case event := <-subscriber.Events():
			report, err := event.Report()
			require.NoError(t, err)
			got[event.MeterID] = report
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for level event")
		}
	}

	assert.Equal(t, 25.0, got["desk"].Percent)
	assert.Equal(t, uint64(10), got["desk"].TotalSamples)
	assert.Equal(t, 75.0, got["studio"].Percent)
	assert.Equal(t, 15, got["studio"].BarLength)
	assert.True(t, at.Equal(got["studio"].At))
}

func TestLevelSubscriber_InvalidFrame(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	conn := NewMockNATSConnection()
	subscriber := NewLevelSubscriberWithConnection(conn, "loopback.levels", 4, zap.New(core))
	require.NoError(t, subscriber.Start())

	conn.Deliver("loopback.levels.desk", []byte("not a frame"))

	assert.Empty(t, subscriber.Events())
	assert.Equal(t, 1, logs.FilterMessageSnippet("Failed to decode level frame").Len())
}

func TestLevelSubscriber_DropsWhenFull(t *testing.T) {
	conn := NewMockNATSConnection()
	subscriber := NewLevelSubscriberWithConnection(conn, "loopback.levels", 1, nil)
	require.NoError(t, subscriber.Start())

	publisher := NewLevelPublisherWithConnection(conn, "loopback.levels", "desk", nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, publisher.Report(meter.Report{At: time.Now()}))
	}

	assert.Len(t, subscriber.Events(), 1)
	assert.Equal(t, uint64(2), subscriber.Dropped())
}

func TestEvent_ReportRejectsOtherFrames(t *testing.T) {
	event := Event{
		MeterID: "desk",
		Frame:   transport.NewFrame(transport.FrameTypeStreamError, 1, 0, time.Now(), []byte("boom")),
	}

	_, err := event.Report()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream-error")
}

func TestLevelSubscriber_Close(t *testing.T) {
	conn := NewMockNATSConnection()
	subscriber := NewLevelSubscriberWithConnection(conn, "loopback.levels", 1, nil)

	subscriber.Close()

	assert.False(t, conn.IsConnected())
}
