package server

import (
	"fmt"
	"net/http"

	"gocv.io/x/gocv"
	"golang.org/x/time/rate"
)

// DefaultStreamFPS caps the preview stream.
const DefaultStreamFPS = 15

// Previewer provides the highlighted preview frame.
type Previewer interface {
	// Preview returns a copy of the newest frame if its version differs from since.
	Preview(since uint64) (frame gocv.Mat, version uint64, ok bool)
}

// StreamHandler serves the preview as MJPEG.
type StreamHandler struct {
	source Previewer
	fps    int
}

// NewStreamHandler creates a StreamHandler sending at most fps frames per second.
func NewStreamHandler(source Previewer, fps int) *StreamHandler {
	if fps <= 0 {
		fps = DefaultStreamFPS
	}
	return &StreamHandler{source: source, fps: fps}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	limiter := rate.NewLimiter(rate.Limit(h.fps), 1)
	var version uint64

	for {
		if err := limiter.Wait(r.Context()); err != nil {
			return
		}

		frame, v, ok := h.source.Preview(version)
		if !ok {
			continue
		}
		version = v

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
		frame.Close()
		if err != nil {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", buf.Len())
		_, werr := w.Write(buf.GetBytes())
		fmt.Fprintf(w, "\r\n")
		buf.Close()
		if werr != nil {
			return
		}

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
