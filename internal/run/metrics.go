package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"eventscan/internal/observe"
)

// Handler serves /metrics from provider plus /healthz and /readyz.
func (s *Server) Handler(provider *observe.Provider) http.Handler {
	mux := http.NewServeMux()
	if provider != nil {
		mux.Handle("GET /metrics", provider.Handler)
	}
	observe.NewHealth(
		observe.Checker{Name: "classifier", Check: func(context.Context) error {
			if s.clf == nil {
				return errors.New("not loaded")
			}
			return nil
		}},
		observe.Checker{Name: "queue", Check: func(context.Context) error {
			if len(s.queue) == cap(s.queue) {
				return fmt.Errorf("%d jobs waiting", len(s.queue))
			}
			return nil
		}},
	).Register(mux)
	return mux
}

func (s *Server) httpServe(ctxDone <-chan struct{}, addr string, provider *observe.Provider) {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Handler(provider),
	}
	go func() {
		<-ctxDone
		_ = server.Close()
	}()
	s.logger.Infof("metrics listening on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Warnf("metrics server: %v", err)
	}
}
