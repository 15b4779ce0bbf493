package main

import (
	"net/http"
	"net/http/pprof"
)

// startHTTPDebugger serves net/http/pprof at addr, for profiling a
// long-running floor-field build or a busy step loop.
func startHTTPDebugger(addr string) {
	pprofHandler := http.NewServeMux()
	pprofHandler.Handle("/debug/pprof/", http.HandlerFunc(pprof.Index))
	pprofHandler.Handle("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))
	server := &http.Server{Addr: addr, Handler: pprofHandler}
	go server.ListenAndServe()
}
