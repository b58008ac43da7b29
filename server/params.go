package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const maxBodyBytes = 1 << 20

// aliases maps accepted parameter names onto the canonical ones.
var aliases = map[string]string{
	"client_id":     "api_key",
	"client_secret": "api_secret",
}

// requestParams merges the query string, a form or JSON body and HTTP basic credentials. Body values
// win over query values; canonical names win over aliases.
type requestParams map[string]string

func (p requestParams) get(name string) string {
	return p[name]
}

func parseParams(r *http.Request) (requestParams, error) {
	params := requestParams{}
	set := func(name, value string) {
		if value == "" {
			return
		}
		if canonical, ok := aliases[name]; ok {
			if _, exists := params[canonical]; !exists {
				params[canonical] = value
			}
			return
		}
		params[name] = value
	}

	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			set(name, values[0])
		}
	}

	if r.Body != nil && r.Method != http.MethodGet {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch mediaType {
		case "application/json":
			body, err := decodeJSONBody(r)
			if err != nil {
				return nil, err
			}
			for name, value := range body {
				set(name, value)
			}
		case "application/x-www-form-urlencoded", "multipart/form-data":
			r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
			var err error
			if mediaType == "multipart/form-data" {
				err = r.ParseMultipartForm(maxBodyBytes)
			} else {
				err = r.ParseForm()
			}
			if err != nil {
				return nil, errors.Wrap(err, "parse form")
			}
			for name, values := range r.PostForm {
				if len(values) > 0 {
					set(name, values[0])
				}
			}
		}
	}

	if user, pass, ok := r.BasicAuth(); ok {
		if _, exists := params["api_key"]; !exists {
			params["api_key"] = user
		}
		if _, exists := params["api_secret"]; !exists {
			params["api_secret"] = pass
		}
	}
	return params, nil
}

// decodeJSONBody flattens a JSON object into strings. Numbers and booleans are formatted; nested
// values are ignored.
func decodeJSONBody(r *http.Request) (map[string]string, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "decode json body")
	}
	out := make(map[string]string, len(raw))
	for name, v := range raw {
		switch value := v.(type) {
		case string:
			out[name] = value
		case json.Number:
			out[name] = value.String()
		case bool:
			out[name] = strconv.FormatBool(value)
		}
	}
	return out, nil
}

// bearerToken reads the token from "Authorization: Bearer", falling back to the access_token or
// token parameters.
func bearerToken(r *http.Request, params requestParams) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	if params == nil {
		return ""
	}
	if token := params.get("access_token"); token != "" {
		return token
	}
	return params.get("token")
}
