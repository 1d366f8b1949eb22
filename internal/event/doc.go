/*
Package event provides a type-safe pub/sub event system for the toolgate daemon.

The event system lets the server, catalog watcher, and ops surface communicate
without direct dependencies: publishers emit events and subscribers react to
them.

# Architecture

The package is built on top of watermill's gochannel for infrastructure while
keeping direct-call semantics so payload types survive. Typed subscribers are
invoked as Go callbacks; every event is also marshaled onto a watermill topic
for stream consumers such as the ops SSE feed.

# Event Types

Server lifecycle:
  - server.started: Listeners are bound and accepting
  - server.stopped: Shutdown complete

Connections:
  - conn.opened: A line or MCP client connected
  - conn.closed: Connection ended, with a reason

Traffic:
  - message.dispatched: A request was routed to a handler
  - heartbeat.sent: A heartbeat went out on a line connection

Catalog:
  - catalog.reloaded: Tool definitions were reloaded from disk

# Basic Usage

Publishing events:

	// Asynchronous publishing (non-blocking)
	event.Publish(event.Event{
		Type: event.ConnOpened,
		Data: event.ConnOpenedData{
			Protocol:   "line",
			RemoteAddr: conn.RemoteAddr().String(),
		},
	})

	// Synchronous publishing (blocking until all subscribers complete)
	event.PublishSync(event.Event{
		Type: event.ServerStopped,
		Data: event.ServerStoppedData{UptimeSeconds: uptime},
	})

Subscribing to specific events:

	unsubscribe := event.Subscribe(event.CatalogReloaded, func(e event.Event) {
		data := e.Data.(event.CatalogReloadedData)
		logging.Info().Int("tools", data.Tools).Msg("catalog reloaded")
	})
	defer unsubscribe()

Subscribing to all events:

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		logging.Debug().Str("type", string(e.Type)).Msg("event")
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

When using PublishSync, subscribers run in the publisher's goroutine. To avoid
blocking or deadlocks, subscribers MUST:

  - Complete quickly (avoid long-running operations)
  - Use non-blocking channel sends (select with default case)
  - Never call Publish/PublishSync from within a subscriber
  - Never acquire locks that the publisher might hold

# Stream Consumers

Consumers that want the wire form rather than typed callbacks read from the
watermill topic:

	msgs, err := event.Stream(ctx)
	for msg := range msgs {
		// msg.Payload is the JSON-encoded Event
		msg.Ack()
	}

The channel closes when ctx is done.

# Custom Event Bus

For testing or isolation, create bus instances:

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.ConnOpened, handler)
	bus.PublishSync(event.Event{Type: event.ConnOpened, Data: data})

The global bus can be reset between tests with event.Reset.

# Thread Safety

The event bus is thread-safe. Both publishing and subscribing are protected by
internal synchronization. Asynchronous publishing (Publish) runs each
subscriber in its own goroutine; synchronous publishing (PublishSync) calls
subscribers in the current goroutine, so use it where ordering matters.
*/
package event
