// Package api implements the read-only HTTP status surface of the grow controller.
//
// Routes:
//
//	GET /api/v1/health               dependency health (503 when degraded)
//	GET /api/v1/system               runtime, inventory and indicator counts
//	GET /api/v1/devices[?kind=Water] inventory joined with the latest loop snapshot
//	GET /api/v1/devices/{kind}/{id}  one device
//	GET /api/v1/cycles               queued and running watering cycles
//	GET /api/v1/history/{kind}/{id}  recorded events, newest first (?limit=)
//	GET /api/v1/events               latest in-memory events (?type=, ?limit=)
//	GET /metrics                     Prometheus exposition
//
// The API never commands hardware. Every non-GET request is answered with 405.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
