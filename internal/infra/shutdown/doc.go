// Package shutdown coordinates graceful process termination.
//
// A Handler owns a context that is cancelled on SIGINT or SIGTERM.
// Components register named hooks; after the signal the hooks run in
// reverse registration order under a shared deadline, so the listener
// closes before the storage it depends on.
//
//	h := shutdown.NewHandler(15*time.Second, logger)
//	h.OnShutdown("storage", store.Close)
//	h.OnShutdown("http", srv.Shutdown)
//	<-h.Context().Done()
//	err := h.Shutdown()
package shutdown
