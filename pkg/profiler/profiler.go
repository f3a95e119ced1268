package profiler

import (
	"log"
	"net/http"
	"net/http/pprof"
	"time"
)

// DefaultAddr is the pprof listener address when the engineering config
// doesn't override it. It deliberately doesn't share the main server's
// port, since pprof gets its own ServeMux.
const DefaultAddr = "localhost:6060"

// InitialiseProfiler sets up a dedicated HTTP server for pprof profiling
// on addr, isolated from the main request-serving mux. Falls back to
// DefaultAddr when addr is empty.
func InitialiseProfiler(addr string) {
	if addr == "" {
		addr = DefaultAddr
	}
	mux := http.NewServeMux()
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	go func() {
		log.Println("Profiler is running on", addr)
		log.Println(server.ListenAndServe())
	}()
}
