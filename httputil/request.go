package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"vidtube/apperr"
)

// MultipartMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files managed by net/http.
const MultipartMemory int64 = 32 << 20

// Fields collects request parameters into a flat map. Query parameters are
// read first and then overlaid by a JSON object, urlencoded or multipart
// body, so handlers accept whichever encoding the client sends.
func Fields(r *http.Request) (map[string]string, error) {
	out := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		if r.Body == nil {
			return out, nil
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, apperr.Validation("invalid request body")
		}
		for k, v := range body {
			switch vv := v.(type) {
			case string:
				out[k] = vv
			case float64:
				out[k] = strconv.FormatFloat(vv, 'f', -1, 64)
			case bool:
				out[k] = strconv.FormatBool(vv)
			}
		}

	case "multipart/form-data":
		if r.MultipartForm == nil {
			if err := r.ParseMultipartForm(MultipartMemory); err != nil {
				return nil, apperr.Validation("invalid multipart body")
			}
		}
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, apperr.Validation("invalid form body")
		}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
	}
	return out, nil
}
