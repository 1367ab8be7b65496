package server

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

type contentEvent struct {
	Content string `json:"content"`
}

// streamFailureMessage is what clients see when a model call fails after the
// stream has opened. The stream still terminates with the [DONE] marker so
// consumers never hang.
const streamFailureMessage = "Sorry, something went wrong while generating this response. Please try again."

// sseWriter frames Server-Sent Events. Every payload goes out as one
// "data: <json>" line; the stream ends with the literal "data: [DONE]".
type sseWriter struct {
	resp    *echo.Response
	flusher http.Flusher
}

func newSSEWriter(c echo.Context) (*sseWriter, error) {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.WriteHeader(http.StatusOK)
	return &sseWriter{resp: resp, flusher: flusher}, nil
}

func (w *sseWriter) event(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) done() error {
	if _, err := w.resp.Write([]byte("data: [DONE]\n\n")); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}
