// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

/*
Package services provides suture.Service wrappers for long-running
components of the master and worker processes.

Each wrapper turns a component's own lifecycle (ListenAndServe/Shutdown,
Run/Close, RunWithContext) into suture's context-aware Serve and names
itself through fmt.Stringer so supervisor logs identify it.

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Used for the master API and for each worker's local face
  - ListenerServer adapts a pre-bound listener so a worker can claim its
    port before reporting ready

WebSocket Hub (WebSocketHubService):
  - Runs a worker's websocket.Hub until the context ends

Message Bus (BusService):
  - Runs the event tap's bus (an embedded or remote NATS connection, or
    the in-process gochannel) and closes it on shutdown

# Usage

	tree, _ := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	tree.AddMessagingService(services.NewBusService(bus))
	errCh := tree.ServeBackground(ctx)

# Error Handling

Return values determine supervisor behavior:

	nil         -> Service stopped cleanly, will not restart
	error       -> Service crashed, supervisor will restart
	ctx.Err()   -> Shutdown requested, normal termination
*/
package services
