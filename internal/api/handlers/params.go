package handlers

import (
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	apiContext "hookrelay/internal/api/context"
)

func param(r *http.Request, name string) string {
	params, ok := r.Context().Value(apiContext.Params).(httprouter.Params)
	if !ok {
		return ""
	}
	return params.ByName(name)
}

func int64Param(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(param(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encodeJSON(w, v)
}
