// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"time"
)

// LocateFunc determines the current coordinate once.
type LocateFunc func(ctx context.Context) (Coordinate, error)

// PollStream calls locate right away and then once per period until ctx is done. A result is
// emitted on the first successful lookup and whenever the position changed significantly.
// Failed lookups are skipped. The returned channel is closed when ctx is done.
func PollStream(ctx context.Context, key, source string, period, ttl time.Duration, locate LocateFunc) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		state := GeolocationState{}
		firstRun := true

		for {
			if !firstRun {
				if !sleepOrDone(ctx, period) {
					return
				}
			}
			firstRun = false

			coord, err := locate(ctx)
			if err != nil || !coord.Valid() || !state.HasChanged(coord) {
				continue
			}
			state.Update(coord)

			select {
			case <-ctx.Done():
				return
			case out <- NewResult(key, source, coord, ttl):
			}
		}
	}()
	return out
}
