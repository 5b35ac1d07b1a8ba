package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ============================================================================
// HTTP Control Endpoint
// ============================================================================
//   POST /tv-on   power on the TV over CEC
//   POST /tv-off  put the TV in standby over CEC
//   POST /pc-off  shut the host down
//   GET  /status  JSON snapshot of daemon state and counters
//   GET  /ws      websocket state stream
//
// The three POST endpoints are fire-and-forget: they always answer 200 with an
// empty body, whatever the outcome. Outcomes are logged.
// ============================================================================

const snapshotTimeout = 1 * time.Second

// errSnapshotUnavailable is returned when the daemon loop doesn't answer in time.
var errSnapshotUnavailable = errors.New("state snapshot unavailable")

type httpAPI struct {
	control *ControlPlane
	events  chan<- Event
	stats   *Stats
	ws      *StateServer
	logger  *slog.Logger
}

// newHTTPHandler builds the mux. ws may be nil.
func newHTTPHandler(control *ControlPlane, events chan<- Event, stats *Stats, ws *StateServer, logger *slog.Logger) http.Handler {
	api := &httpAPI{control: control, events: events, stats: stats, ws: ws, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /tv-on", api.fireAndForget(ActionTVOn))
	mux.HandleFunc("POST /tv-off", api.fireAndForget(ActionTVOff))
	mux.HandleFunc("POST /pc-off", api.fireAndForget(ActionPCOff))
	mux.HandleFunc("GET /status", api.handleStatus)
	if ws != nil {
		ws.Register(mux, "GET /ws")
	}
	return mux
}

func (a *httpAPI) fireAndForget(action ControlAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = a.control.Execute(ControlRequest{Action: action, Origin: "http"})
		w.WriteHeader(http.StatusOK)
	}
}

func (a *httpAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := requestSnapshot(r.Context(), a.events, snapshotTimeout)
	if err != nil {
		a.logger.Warn("status snapshot failed", "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	stats := a.stats.Snapshot()
	snap.Stats = &stats
	if a.ws != nil {
		snap.WSClients = a.ws.Hub().ClientCount()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		a.logger.Debug("status write failed", "error", err)
	}
}

// requestSnapshot asks the daemon loop for a StatusSnapshot, waiting at most timeout.
func requestSnapshot(ctx context.Context, events chan<- Event, timeout time.Duration) (StatusSnapshot, error) {
	if events == nil {
		return StatusSnapshot{}, errSnapshotUnavailable
	}

	waitCtx := ctx
	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	reply := make(chan StatusSnapshot, 1)
	select {
	case events <- RequestStateSnapshot{Reply: reply}:
	case <-waitCtx.Done():
		return StatusSnapshot{}, fmt.Errorf("%w: %v", errSnapshotUnavailable, waitCtx.Err())
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-waitCtx.Done():
		return StatusSnapshot{}, fmt.Errorf("%w: %v", errSnapshotUnavailable, waitCtx.Err())
	}
}

// runHTTPServer serves handler on listenAddr and shuts it down gracefully when
// ctx is canceled.
func runHTTPServer(ctx context.Context, listenAddr string, handler http.Handler, logger *slog.Logger) error {
	logger.Info("HTTP server listening", "addr", listenAddr)

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
