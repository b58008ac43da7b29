package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/lms-oauth-gateway/auth"
)

const contentTypeJSON = "application/json; charset=utf-8"

var successPrefix = []byte(`{"status":"success"`)

// failureResponse is the body of every error response.
type failureResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
	Code   string `json:"code"`
}

// writeSuccess writes payload, which must encode as a JSON object, with "status":"success" as its
// first member.
func writeSuccess(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil || len(body) < 2 || body[0] != '{' {
		writeFailure(w, http.StatusInternalServerError, "internal server error", auth.Internal.String())
		return
	}
	var buf bytes.Buffer
	buf.Grow(len(successPrefix) + len(body))
	buf.Write(successPrefix)
	if inner := body[1:]; !bytes.Equal(inner, []byte("}")) {
		buf.WriteByte(',')
		buf.Write(inner)
	} else {
		buf.WriteByte('}')
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeFailure(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(failureResponse{Status: "failure", Msg: msg, Code: code})
}

// writeError maps an error from the authorization service onto the failure envelope.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := auth.KindOf(err)
	s.metrics.GrantFailed(kind.String())
	if kind == auth.TokenInvalid || kind == auth.LoginFailed {
		w.Header().Set("WWW-Authenticate", `Bearer realm="lms-oauth-gateway"`)
	}
	writeFailure(w, kind.HTTPStatus(), auth.PublicMessage(err), kind.String())
}
