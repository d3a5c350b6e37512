// Package subscriber implements component F: long-lived chunked HTTP
// responses for SUBSCRIBE/PSUBSCRIBE. It owns a cloned upstream session
// (internal/upstream) for the duration of the stream, per SPEC_FULL.md
// §4.F and §9 (subscription records own a cloned session; the HTTP
// connection only holds a weak handle via request-context cancellation).
package subscriber

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/webdis-go/webdis-go/internal/formatregistry"
	"github.com/webdis-go/webdis-go/internal/reply"
	"github.com/webdis-go/webdis-go/internal/upstream"
)

// FormatFunc renders one pushed reply (a "message"/"pmessage" array) into
// a response body fragment, given the verb used for the JSON envelope.
type FormatFunc func(verb string, r reply.Reply) (body []byte, contentType string)

// Stream drives one subscription for its entire lifetime: it issues the
// subscribe command on a dedicated connection, then forwards every
// pushed message as one HTTP chunk until the client disconnects or the
// upstream connection dies.
//
// w must support http.Flusher (net/http's standard ResponseWriter does).
func Stream(w http.ResponseWriter, r *http.Request, session *upstream.Session, argv [][]byte, desc formatregistry.Descriptor, format FormatFunc, logger *zap.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	conn, connDone, err := session.AwaitConn(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	verb := string(argv[0])
	args := make([]interface{}, len(argv)-1)
	for i, a := range argv[1:] {
		args[i] = a
	}
	if err := conn.Send(verb, args...); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if err := conn.Flush(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", desc.ContentType)
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	startedResponding := false

	msgCh := make(chan reply.Reply)
	errCh := make(chan error, 1)
	go func() {
		for {
			v, err := conn.Receive()
			if err != nil {
				errCh <- err
				return
			}
			msgCh <- reply.FromInterface(v, nil)
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			// Client disconnected: free the subscription and close the
			// cloned upstream session (SPEC_FULL.md §4.F step 5).
			_ = conn.Close()
			logger.Debug("subscription client disconnected", zap.String("verb", verb))
			return
		case <-connDone:
			// Upstream died mid-stream: hijack and close the raw HTTP
			// socket so the client sees an abrupt severance rather than a
			// clean terminating chunk (step 5).
			logger.Warn("subscription upstream disconnected", zap.String("verb", verb))
			hijackAndClose(w, logger)
			return
		case err := <-errCh:
			logger.Warn("subscription read error", zap.Error(err), zap.String("verb", verb))
			hijackAndClose(w, logger)
			return
		case msg := <-msgCh:
			body, _ := format(verb, msg)
			if _, err := w.Write(body); err != nil {
				return
			}
			flusher.Flush()
			startedResponding = true
			_ = startedResponding
		}
	}
}

// hijackAndClose forcibly severs the raw HTTP connection instead of
// returning through the normal handler path, so no clean chunked
// terminator is ever written for an upstream-initiated disconnect. Falls
// back to a no-op if w doesn't support hijacking (e.g. HTTP/2, or a
// ResponseWriter used in a test harness) — there is nothing more to do in
// that case than let the handler return normally.
func hijackAndClose(w http.ResponseWriter, logger *zap.Logger) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		logger.Warn("hijack failed", zap.Error(err))
		return
	}
	_ = conn.Close()
}
