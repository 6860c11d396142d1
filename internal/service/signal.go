// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SigToggleLocation is SIGRTMIN+1 as seen by the C library, so that `pkill -RTMIN+1
// waybar-prayertimes` switches the location method.
const SigToggleLocation = syscall.Signal(35)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleAltTextToggleSignal toggles the module text display when a signal is received
func (s *Service) HandleAltTextToggleSignal(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			s.displayAltLock.Lock()
			s.displayAltText = !s.displayAltText
			s.displayAltLock.Unlock()
			s.printTimings(ctx)
		}
	}
}

// HandleRefreshSignal fetches the prayer times when a signal is received. Bursts of signals are
// coalesced by the debounce gate of the widget.
func (s *Service) HandleRefreshSignal(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			s.refresh(ctx)
		}
	}
}

// HandleReloadSignal re-reads the location from the configuration when a signal is received
func (s *Service) HandleReloadSignal(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			s.reloadLocation(ctx)
		}
	}
}

// HandleLocationToggleSignal switches between city and current location mode when a signal is
// received
func (s *Service) HandleLocationToggleSignal(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			s.toggleLocationMethod(ctx)
		}
	}
}
