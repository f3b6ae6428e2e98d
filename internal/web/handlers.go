package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
)

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 64 << 10

// DefaultPreviewInterval is the live preview frame period (~10 fps).
const DefaultPreviewInterval = 100 * time.Millisecond

const previewQuality = 0.7

var errInvalidBody = errors.New("invalid JSON")

// Booth is the capture widget as seen by the web layer.
type Booth interface {
	Trigger() error
	Update(fn func(s *capture.Settings) error) (capture.Settings, error)
	Settings() capture.Settings
	Surface() capture.Surface
	Photo() (capture.Photo, bool)
	PreviewFrame() (image.Image, error)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster     *StatusBroadcaster
	Booth           Booth
	PreviewInterval time.Duration
	staticFS        fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If booth is nil, booth endpoints return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, booth Booth, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:     broadcaster,
		Booth:           booth,
		PreviewInterval: DefaultPreviewInterval,
		staticFS:        staticFS,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) booth(w http.ResponseWriter) bool {
	if h.Booth == nil {
		http.Error(w, "booth not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleState returns the current surface as JSON.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if !h.booth(w) {
		return
	}
	writeJSON(w, http.StatusOK, h.Booth.Surface())
}

// HandleSettings returns the current capture settings as JSON.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	if !h.booth(w) {
		return
	}
	writeJSON(w, http.StatusOK, h.Booth.Settings())
}

// HandleTrigger handles POST /trigger: the on-screen or remote trigger.
func (h *Handlers) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.booth(w) {
		return
	}
	if err := h.Booth.Trigger(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// HandleConfigure handles POST /configure. The body is applied over the
// current settings on the widget's loop, so partial updates are accepted
// and concurrent ones all land.
func (h *Handlers) HandleConfigure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.booth(w) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, errInvalidBody.Error(), http.StatusBadRequest)
		return
	}
	s, err := h.Booth.Update(func(s *capture.Settings) error {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(s); err != nil {
			return errInvalidBody
		}
		return nil
	})
	switch {
	case errors.Is(err, capture.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Broadcaster.BroadcastMsg(fmt.Sprintf("Settings updated (%s, countdown %d)", s.FacingMode, s.CountdownStart))
	writeJSON(w, http.StatusOK, s)
}

// HandlePhoto returns the still under review as {id, data_uri, taken_at}.
func (h *Handlers) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	if !h.booth(w) {
		return
	}
	p, ok := h.Booth.Photo()
	if !ok {
		http.Error(w, "no photo under review", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandlePreview streams the live feed as MJPEG (multipart/x-mixed-replace).
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if !h.booth(w) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	const boundary = "snapgoframe"
	started := false
	interval := h.PreviewInterval
	if interval <= 0 {
		interval = DefaultPreviewInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if data, err := h.previewJPEG(); err == nil {
			if !started {
				w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
				w.Header().Set("Cache-Control", "no-cache")
				started = true
			}
			fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(data))
			w.Write(data)
			w.Write([]byte("\r\n"))
			flusher.Flush()
		} else if !started {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handlers) previewJPEG() ([]byte, error) {
	img, err := h.Booth.PreviewFrame()
	if err != nil {
		return nil, err
	}
	_, data, err := camera.EncodeBytes(img, camera.StillOptions{
		Type:        camera.JPG,
		Compression: previewQuality,
		Mirror:      h.Booth.Surface().Mirror,
	})
	return data, err
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
