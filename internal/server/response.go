package server

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
)

const (
	ContentTypeJSON   = "application/json"
	ContentTypeSSE    = "text/event-stream"
	ContentTypeHeader = "Content-Type"

	sseDoneSentinel = "data: [DONE]\n\n"
)

var statusNames = map[int]string{
	200: "OK",
	204: "No Content",
	400: "Bad Request",
	401: "Unauthorized",
	404: "Not Found",
	413: "Payload Too Large",
	500: "Internal Server Error",
}

// responseWriter serialises responses back onto the raw socket.
type responseWriter struct {
	conn       net.Conn
	corsOrigin string
	wroteHead  bool
}

func statusName(status int) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return "Status " + fmt.Sprint(status)
}

func (w *responseWriter) writeHead(status int, headers [][2]string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, statusName(status))
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h[0], h[1])
	}
	if w.corsOrigin != "" {
		fmt.Fprintf(&b, "Access-Control-Allow-Origin: %s\r\n", w.corsOrigin)
	}
	b.WriteString("Connection: close\r\n\r\n")

	w.wroteHead = true
	_, err := w.conn.Write([]byte(b.String()))
	return err
}

// writeJSON serialises v as the full response body. Encoding failures
// degrade to a 500 with a fixed error body, never a broken connection.
func (w *responseWriter) writeJSON(status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return w.writeError(500, "Encoding error")
	}
	return w.writeBody(status, ContentTypeJSON, body)
}

func (w *responseWriter) writeError(status int, message string) error {
	body, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		body = []byte(`{"error":"Encoding error"}`)
	}
	return w.writeBody(status, ContentTypeJSON, body)
}

func (w *responseWriter) writeBody(status int, contentType string, body []byte) error {
	headers := [][2]string{
		{ContentTypeHeader, contentType},
		{"Content-Length", fmt.Sprint(len(body))},
	}
	if err := w.writeHead(status, headers); err != nil {
		return err
	}
	_, err := w.conn.Write(body)
	return err
}

func (w *responseWriter) writeNoContent(status int, extraHeaders [][2]string) error {
	headers := append(extraHeaders, [2]string{"Content-Length", "0"})
	return w.writeHead(status, headers)
}

// beginSSE switches the connection into Server-Sent-Events mode. The
// connection stays open until writeSSEDone.
func (w *responseWriter) beginSSE() error {
	return w.writeHead(200, [][2]string{
		{ContentTypeHeader, ContentTypeSSE},
		{"Cache-Control", "no-cache"},
	})
}

// writeSSEData frames v as one `data: <json>` event.
func (w *responseWriter) writeSSEData(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w.conn, "data: %s\n\n", payload)
	return err
}

// writeSSEDone emits the terminal sentinel; the caller closes the socket.
func (w *responseWriter) writeSSEDone() error {
	_, err := w.conn.Write([]byte(sseDoneSentinel))
	return err
}
