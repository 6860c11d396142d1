// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/waybar-prayertimes/internal/logger"
)

const (
	dbusInterface   = "org.freedesktop.login1.Manager"
	dbusWatchMember = "PrepareForSleep"

	resumeDebounceWindow = 2 * time.Second
	signalBufferSize     = 8

	busReconnectDelay   = 5 * time.Second
	networkWakeupDelay  = 10 * time.Second
	reconnectDelay      = 2 * time.Second
	subscribeRetryDelay = 10 * time.Second
)

// monitorSleepResume monitors system sleep and resume events using D-Bus signals and handles
// reconnections as needed.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResumeUnix int64

	for {
		conn := s.connectToSystemBus(ctx)
		if conn == nil {
			return // the context was cancelled, exit
		}

		if !s.setupSleepMonitoring(ctx, conn) {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		sigCh := make(chan *dbus.Signal, signalBufferSize)
		conn.Signal(sigCh)
		s.logger.Debug("subscribed to dbus signal", slog.String("interface", dbusInterface),
			slog.String("member", dbusWatchMember))

		s.handleSleepSignals(ctx, sigCh, &lastResumeUnix)

		// Clean up before reconnect
		conn.RemoveSignal(sigCh)
		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close system bus connection", logger.Err(err))
		}

		if !sleepOrDone(ctx, reconnectDelay) {
			return
		}
	}
}

// connectToSystemBus establishes a connection to the system D-Bus, retrying on failure until ctx
// is cancelled.
func (s *Service) connectToSystemBus(ctx context.Context) *dbus.Conn {
	for {
		conn, err := s.connectBus()
		if err != nil {
			s.logger.Debug("failed to connect to system bus", logger.Err(err))
			if !sleepOrDone(ctx, busReconnectDelay) {
				return nil
			}
			continue
		}

		// Ensure cleanup on context cancellation
		context.AfterFunc(ctx, func() {
			_ = conn.Close()
		})

		return conn
	}
}

// setupSleepMonitoring subscribes to the sleep signal of logind. On failure the connection is
// closed and false is returned after the retry delay.
func (s *Service) setupSleepMonitoring(ctx context.Context, conn *dbus.Conn) bool {
	if err := conn.AddMatchSignal(dbus.WithMatchInterface(dbusInterface),
		dbus.WithMatchMember(dbusWatchMember),
	); err != nil {
		s.logger.Error("failed to subscribe to dbus signal", slog.String("interface", dbusInterface),
			slog.String("member", dbusWatchMember), logger.Err(err))
		if err = conn.Close(); err != nil {
			s.logger.Error("failed to close system bus connection", logger.Err(err))
		}
		sleepOrDone(ctx, subscribeRetryDelay)
		return false
	}
	return true
}

// handleSleepSignals processes sleep signals until ctx is done or the signal channel is closed.
func (s *Service) handleSleepSignals(ctx context.Context, sigCh chan *dbus.Signal, lastResumeUnix *int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case sgn, ok := <-sigCh:
			if !ok {
				// connection likely closed; try to reconnect
				return
			}
			s.processSleepSignal(ctx, sgn, lastResumeUnix)
		}
	}
}

// processSleepSignal triggers a refresh when the signal announces a resume. PrepareForSleep
// carries true before suspend and false after resume.
func (s *Service) processSleepSignal(ctx context.Context, sgn *dbus.Signal, lastResumeUnix *int64) {
	if sgn == nil || len(sgn.Body) != 1 {
		return
	}
	sleeping, ok := sgn.Body[0].(bool)
	if !ok || sleeping {
		return
	}
	s.handleResumeEvent(ctx, lastResumeUnix)
}

// handleResumeEvent refreshes the prayer times after a resume. The day has likely changed while
// the system was suspended.
func (s *Service) handleResumeEvent(ctx context.Context, lastResumeUnix *int64) {
	now := s.clock.Now().Unix()

	// debounce in case of multiple resume events
	last := atomic.LoadInt64(lastResumeUnix)
	if now-last < int64(resumeDebounceWindow.Seconds()) {
		return
	}
	if !atomic.CompareAndSwapInt64(lastResumeUnix, last, now) {
		return
	}

	// Give the system time to wake up and establish network connection
	if !sleepOrDone(ctx, networkWakeupDelay) {
		return
	}

	s.logger.Debug("resuming from sleep, fetching latest prayer times")
	s.refresh(ctx)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
