package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Prometheus-style counters (atomic, no client library)
var (
	httpRequests         atomic.Uint64
	submissionsForwarded atomic.Uint64
	submissionsRejected  atomic.Uint64
	datagramsReceived    atomic.Uint64
	recordsStored        atomic.Uint64
	recordsDropped       atomic.Uint64
	storeErrors          atomic.Uint64
	wsConnections        atomic.Int64 // gauge semantics
)

func IncHTTPRequests()         { httpRequests.Add(1) }
func IncSubmissionsForwarded() { submissionsForwarded.Add(1) }
func IncSubmissionsRejected()  { submissionsRejected.Add(1) }
func IncDatagramsReceived()    { datagramsReceived.Add(1) }
func IncRecordsStored()        { recordsStored.Add(1) }
func IncRecordsDropped()       { recordsDropped.Add(1) }
func IncStoreErrors()          { storeErrors.Add(1) }
func IncWSConnections()        { wsConnections.Add(1) }
func DecWSConnections()        { wsConnections.Add(-1) }

// Handler exposes metrics in a minimal Prometheus exposition format.
func Handler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP guestbook_http_requests_total HTTP requests served\n")
	fmt.Fprintf(w, "# TYPE guestbook_http_requests_total counter\n")
	fmt.Fprintf(w, "guestbook_http_requests_total %d\n", httpRequests.Load())

	fmt.Fprintf(w, "# HELP guestbook_submissions_total Form submissions by outcome\n")
	fmt.Fprintf(w, "# TYPE guestbook_submissions_total counter\n")
	fmt.Fprintf(w, "guestbook_submissions_total{outcome=\"forwarded\"} %d\n", submissionsForwarded.Load())
	fmt.Fprintf(w, "guestbook_submissions_total{outcome=\"rejected\"} %d\n", submissionsRejected.Load())

	fmt.Fprintf(w, "# HELP guestbook_datagrams_received_total UDP datagrams received by the relay\n")
	fmt.Fprintf(w, "# TYPE guestbook_datagrams_received_total counter\n")
	fmt.Fprintf(w, "guestbook_datagrams_received_total %d\n", datagramsReceived.Load())

	fmt.Fprintf(w, "# HELP guestbook_records_total Relay records by outcome\n")
	fmt.Fprintf(w, "# TYPE guestbook_records_total counter\n")
	fmt.Fprintf(w, "guestbook_records_total{outcome=\"stored\"} %d\n", recordsStored.Load())
	fmt.Fprintf(w, "guestbook_records_total{outcome=\"dropped\"} %d\n", recordsDropped.Load())

	fmt.Fprintf(w, "# HELP guestbook_store_errors_total Failed insert attempts\n")
	fmt.Fprintf(w, "# TYPE guestbook_store_errors_total counter\n")
	fmt.Fprintf(w, "guestbook_store_errors_total %d\n", storeErrors.Load())

	fmt.Fprintf(w, "# HELP guestbook_ws_connections Currently connected websocket clients\n")
	fmt.Fprintf(w, "# TYPE guestbook_ws_connections gauge\n")
	fmt.Fprintf(w, "guestbook_ws_connections %d\n", wsConnections.Load())
}
