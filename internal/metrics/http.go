package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// monitorScript is the microfrontend fragment the dashboard embeds to poll
// and render the /metrics snapshot.
const monitorScript = `(function () {
  function render(snap) {
    var el = document.getElementById('rdb-metrics');
    if (!el) { return; }
    var lines = ['queries: ' + snap.queryCount, 'databases: ' + snap.databaseCount];
    (snap.databases || []).forEach(function (db) {
      (db.tables || []).forEach(function (tbl) {
        lines.push(db.name + '.' + tbl.name + ': ' + tbl.rowCount + ' rows');
      });
    });
    el.textContent = lines.join('\n');
  }
  function poll() {
    fetch('/metrics').then(function (r) { return r.json(); }).then(render);
  }
  poll();
  setInterval(poll, 2000);
})();
`

// NewRouter exposes the snapshot and the monitoring script fragment.
func NewRouter(collector *Collector, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(collector.Snapshot()); err != nil {
			logger.Error("error encoding metrics snapshot", zap.Error(err))
		}
	}).Methods(http.MethodGet)

	router.HandleFunc("/script.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Write([]byte(monitorScript))
	}).Methods(http.MethodGet)

	return router
}
