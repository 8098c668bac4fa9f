package tee

import (
	"bytes"
	"net/http"
)

// ResponseSaver is a wrapper around http.ResponseWriter that buffers the
// response body while writing it through to the client unchanged. The
// capture path reads the buffered body after the pipeline completes;
// buffering must never delay or alter what the client receives.
type ResponseSaver struct {
	rw           http.ResponseWriter
	b            bytes.Buffer
	status       int
	wroteHeaders bool
}

// NewResponseSaver returns a new ResponseSaver teeing to w.
func NewResponseSaver(w http.ResponseWriter) *ResponseSaver {
	return &ResponseSaver{
		rw:     w,
		status: http.StatusOK,
	}
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Header() http.Header {
	return t.rw.Header()
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) WriteHeader(statusCode int) {
	t.wroteHeaders = true
	t.status = statusCode
	t.rw.WriteHeader(statusCode)
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Write(b []byte) (int, error) {
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	t.b.Write(b)
	return t.rw.Write(b)
}

// Body returns the buffered response body.
func (t *ResponseSaver) Body() []byte {
	return t.b.Bytes()
}

// StatusCode returns the status code of the response.
func (t *ResponseSaver) StatusCode() int {
	return t.status
}
