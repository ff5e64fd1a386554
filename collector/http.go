package collector

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const viewerWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves
//
//	/samples   WebSocket stream of the stored samples followed by new ones
//	/ingest    WebSocket endpoint for telemetry.WebSocketSink
//	/snapshot  the stored samples as a JSON array
//	/metrics   Prometheus metrics
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/samples", instrument("samples", http.HandlerFunc(c.serveSamples)))
	mux.Handle("/ingest", instrument("ingest", http.HandlerFunc(c.serveIngest)))
	mux.Handle("/snapshot", instrument("snapshot", http.HandlerFunc(c.serveSnapshot)))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func instrument(name string, handler http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(
		requestCount.MustCurryWith(prometheus.Labels{"handler": name}),
		handler,
	)
}

func (c *Collector) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(c.Snapshot())
	if err != nil {
		c.debug("collector: write snapshot: ", err)
	}
}

func (c *Collector) serveSamples(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	subscription := c.Subscribe(0)
	defer subscription.Close()

	// Viewers only send control frames. Reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for _, sample := range c.Snapshot() {
		if !c.writeSample(conn, sample) {
			return
		}
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case sample := <-subscription.C:
			if !c.writeSample(conn, sample) {
				return
			}
		}
	}
}

func (c *Collector) writeSample(conn *websocket.Conn, sample any) bool {
	err := conn.SetWriteDeadline(time.Now().Add(viewerWriteTimeout))
	if err == nil {
		err = conn.WriteJSON(sample)
	}
	if err != nil {
		c.debug("collector: write to viewer: ", err)
		return false
	}
	return true
}

func (c *Collector) serveIngest(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		messageType, content, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.ingest(transportWebSocket, content)
	}
}
