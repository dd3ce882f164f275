package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges a callback subscription to a channel for
// select-based consumers. Events are dropped when ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- T) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
