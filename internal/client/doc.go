// Package client is a Go client for coco-gateway.
//
// # Overview
//
// Client wraps the REST surface (login, CRUD, data, engine events) with
// bearer-token authentication, and Watch follows the /coco WebSocket stream.
//
//	c := client.New("http://localhost:8080", "")
//	if _, err := c.Login(ctx, "admin", "secret"); err != nil {
//		return err
//	}
//	types, err := c.ListTypes(ctx)
//
// Non-2xx responses are returned as *APIError carrying the status code and
// the server's error message.
package client
