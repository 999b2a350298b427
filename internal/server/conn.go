package server

import (
	"bytes"
	"context"
	"net"
	"time"
)

type connPhase int

const (
	// phaseWaiting buffers bytes until the header terminator arrives
	phaseWaiting connPhase = iota
	// phaseAccumulatingBody holds a parsed head while the declared body
	// byte count streams in
	phaseAccumulatingBody
)

const headerTerminator = "\r\n\r\n"

// pendingRequest is the per-connection parse state. It is a value: every
// advance produces a replacement rather than mutating in place, so a failed
// parse cannot corrupt a later request on the same connection.
type pendingRequest struct {
	phase connPhase
	buf   []byte
	req   *httpRequest
	need  int
}

type requestLimits struct {
	maxHeaderBytes int
	maxBodyBytes   int
}

// advance folds newly read bytes into the state machine and returns the next
// state plus a complete request once one is available.
func (p pendingRequest) advance(data []byte, limits requestLimits) (pendingRequest, *httpRequest, error) {
	next := pendingRequest{
		phase: p.phase,
		buf:   append(append([]byte(nil), p.buf...), data...),
		req:   p.req,
		need:  p.need,
	}

	switch next.phase {
	case phaseWaiting:
		idx := bytes.Index(next.buf, []byte(headerTerminator))
		if idx < 0 {
			if limits.maxHeaderBytes > 0 && len(next.buf) > limits.maxHeaderBytes {
				return pendingRequest{}, nil, errHeaderTooLarge
			}
			return next, nil, nil
		}

		req, err := parseHead(next.buf[:idx])
		if err != nil {
			return pendingRequest{}, nil, err
		}

		contentLength, err := req.ContentLength()
		if err != nil {
			return pendingRequest{}, nil, err
		}
		if limits.maxBodyBytes > 0 && contentLength > limits.maxBodyBytes {
			return pendingRequest{}, nil, errBodyTooLarge
		}

		remainder := next.buf[idx+len(headerTerminator):]
		if contentLength == 0 {
			req.Body = nil
			return pendingRequest{}, req, nil
		}

		next = pendingRequest{
			phase: phaseAccumulatingBody,
			buf:   append([]byte(nil), remainder...),
			req:   req,
			need:  contentLength,
		}
		return next.drainBody()

	case phaseAccumulatingBody:
		return next.drainBody()
	}

	return next, nil, nil
}

func (p pendingRequest) drainBody() (pendingRequest, *httpRequest, error) {
	if len(p.buf) < p.need {
		return p, nil, nil
	}
	req := p.req
	req.Body = append([]byte(nil), p.buf[:p.need]...)
	return pendingRequest{}, req, nil
}

// handleConnection owns one accepted socket for its lifetime. Connections
// are not pipelined: the first complete request is dispatched and the
// connection closes when its response (streamed or not) finishes.
func (s *Server) handleConnection(ctx context.Context, id string, conn net.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		_ = conn.Close()
		s.conns.Delete(id)
		s.wg.Done()
	}()

	// The watchdog is released by the deferred cancel, not just by server
	// shutdown, so it cannot outlive its connection
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	cfg := s.configSnapshot()
	limits := requestLimits{
		maxHeaderBytes: int(cfg.RequestLimits.MaxHeaderSize),
		maxBodyBytes:   int(cfg.RequestLimits.MaxBodySize),
	}

	w := &responseWriter{conn: conn}
	pending := pendingRequest{}
	buf := make([]byte, 4096)

	for {
		if cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			var req *httpRequest
			pending, req, err = pending.advance(buf[:n], limits)
			if err != nil {
				s.logger.Debug("Rejecting malformed request", "conn_id", id, "error", err)
				w.writeError(statusFor(err), "Malformed request")
				return
			}
			if req != nil {
				s.dispatch(connCtx, w, req, conn.RemoteAddr())
				return
			}
			continue
		}
		if err != nil {
			return
		}
	}
}

func statusFor(err error) int {
	switch err {
	case errBodyTooLarge, errHeaderTooLarge:
		return 413
	default:
		return 400
	}
}
