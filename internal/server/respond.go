package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/fotofoto/filmreturn/internal/failure"

	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 8 << 20

// writeJSON encodes v before writing the status, so a value that cannot be
// encoded turns into a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Int("status", status).Msg("failed encoding response")
		status = http.StatusInternalServerError
		body = []byte(`{"error":"Something went wrong. Please try again."}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := failure.HTTPStatus(err)
	event := hlog.FromRequest(r).Warn()
	if status >= http.StatusInternalServerError {
		event = hlog.FromRequest(r).Error()
	}
	event.Err(err).Str("kind", failure.KindOf(err).String()).Int("status", status).Msg("request failed")
	writeJSON(w, status, map[string]string{"error": failure.UserMessage(err)})
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == io.EOF {
		return nil
	}
	return failure.Wrap(err, failure.InvalidInput, "Invalid request body.")
}
