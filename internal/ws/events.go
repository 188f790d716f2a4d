package ws

import (
	"economicgoose/internal/auction"
	"economicgoose/internal/gametime"
)

// AuctionEventBroadcaster adapts controller notifications into WS frames
// fanned out to every connected client. Wire it as the controller's notify
// hook.
func AuctionEventBroadcaster(hub *Hub) func(auction.Event) {
	return func(ev auction.Event) {
		switch ev.Kind {
		case auction.EventList:
			hub.BroadcastJSON(TopicGame, "auctions/list", ev.Body)
		case auction.EventAuction:
			hub.BroadcastJSON(TopicGame, "auctions/snapshot", ev.Body)
		case auction.EventBid:
			hub.BroadcastJSON(TopicGame, "auctions/bid", ev.Body)
		}
	}
}

// TimeBroadcaster pushes the game clock reading on every tick. Wire it as
// the clock's OnTick hook.
func TimeBroadcaster(hub *Hub) func(gametime.GameTime) {
	return func(t gametime.GameTime) {
		hub.BroadcastJSON(TopicGame, "time/state", t)
	}
}
