package presscache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"net/http"

	cachekey "github.com/presscache/presscache/pkg/cache-key"
)

// minBodyBytes rejects obviously truncated or error-fragment bodies.
const minBodyBytes = 256

// capture validates the completed response body and persists it. The
// request is re-classified here rather than reusing the serve-time
// decision, since the pipeline may have flagged it in the meantime. Any
// guard failure silently skips persistence; the client already has the
// original body either way.
func (pc *PageCache) capture(r *http.Request, cfg Config, paths cachekey.Paths, body []byte, statusCode int) {
	if ok, reason := IsCachable(r, cfg); !ok {
		pc.log.Trace().Str("url", r.URL.String()).Str("reason", string(reason)).Msg("Not capturing response")
		return
	}
	if statusCode != http.StatusOK {
		pc.log.Trace().Int("status", statusCode).Msg("Not capturing non-200 response")
		return
	}
	if len(body) < minBodyBytes {
		pc.log.Trace().Int("size", len(body)).Msg("Not capturing undersized response")
		return
	}
	if lastIndexTag(body, "<html") < 0 {
		pc.log.Trace().Msg("Not capturing response without document root")
		return
	}

	stamped := pc.stamp(body)

	// the two writes are independent: a gz failure must not undo the
	// plain write, and vice versa
	if !pc.store.Write(paths.Plain, stamped) {
		pc.metrics.RecordStoreFailure("write-plain")
	}
	if cfg.GzipEnabled {
		compressed, err := gzipBytes(stamped)
		if err != nil {
			pc.log.Error().Err(err).Msg("Could not compress page")
			pc.metrics.RecordStoreFailure("compress")
		} else if !pc.store.Write(paths.Gz, compressed) {
			pc.metrics.RecordStoreFailure("write-gz")
		}
	}
	pc.log.Trace().Str("url", r.URL.String()).Int("size", len(stamped)).Msg("Captured page")
}

// stamp appends the generation marker right before the closing body tag,
// or at the very end if there is none. Only subsequently served cached
// copies carry the marker, never the response that generated it.
func (pc *PageCache) stamp(body []byte) []byte {
	marker := fmt.Sprintf("\n<!-- page cached by presscache v%s - %s UTC -->",
		pc.version, pc.now().UTC().Format("2006-01-02 15:04:05"))
	idx := lastIndexTag(body, "</body>")

	stamped := make([]byte, 0, len(body)+len(marker))
	if idx < 0 {
		stamped = append(stamped, body...)
		return append(stamped, marker...)
	}
	stamped = append(stamped, body[:idx]...)
	stamped = append(stamped, marker...)
	stamped = append(stamped, '\n')
	return append(stamped, body[idx:]...)
}

// lastIndexTag returns the last index of tag in body, matching ASCII
// letters case-insensitively. The scan compares bytes in place, so the
// index stays valid when the surrounding content is multibyte UTF-8
// (lowercasing the whole body first can shift offsets: runes such as
// U+0130 shrink when lowered). tag must be lowercase ASCII.
func lastIndexTag(body []byte, tag string) int {
	for i := len(body) - len(tag); i >= 0; i-- {
		if equalTagFold(body[i:i+len(tag)], tag) {
			return i
		}
	}
	return -1
}

func equalTagFold(b []byte, tag string) bool {
	for i := 0; i < len(tag); i++ {
		c := b[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != tag[i] {
			return false
		}
	}
	return true
}

// gzipBytes compresses at level 6, trading CPU for ratio the same way the
// serving web servers do by default.
func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, 6)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
