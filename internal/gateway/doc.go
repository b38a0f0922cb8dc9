// Package gateway serves coco-gateway over HTTP.
//
// # Overview
//
// A Gateway owns the domain store, the hub, and the HTTP server. The hub is
// the only writer of domain state: REST mutations, WebSocket logins, and
// engine events are all serialized on its loop, which is what keeps the
// broadcast order equal to the mutation order.
//
// # HTTP API
//
// Public:
//
//   - GET /health, GET /health/ready
//   - POST /login {username, password} returns {token, user}
//   - GET /coco upgrades to the WebSocket protocol
//
// Any authenticated user (Authorization: Bearer <token>):
//
//   - /types, /types/{id}
//   - /items[?type_id=], /items/{id}
//   - GET|POST /data/{item_id} (Idempotency-Key deduplicates POST retries)
//   - /rules/{reactive|deliberative}, /rules/{kind}/{id}
//
// Privileged users only:
//
//   - /users, /users/{id}
//   - POST /engine/events, one engine event or an array of them
//
// Errors are JSON {"error": "..."} with 400, 401, 403, 404, 409, or 500.
//
// # WebSocket
//
// A /coco connection starts anonymous. The client sends
//
//	{"type": "login", "token": "..."}
//
// (or "connect") and receives an ack, then the snapshot: types, items,
// reactive_rules, deliberative_rules, solvers, each solver's state and graph,
// and for privileged users the users roster. Change broadcasts follow.
// A document that is not a JSON object with string type and token closes the
// connection with status 1008.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks; shuts down when ctx is canceled
package gateway
