package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vllmd-project/launcher/pkg/api"
	"github.com/vllmd-project/launcher/pkg/rangeheader"
	"github.com/vllmd-project/launcher/pkg/rpc"
)

func (d *Daemon) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (d *Daemon) infoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "vllmd",
		"version": Version,
	})
}

func (d *Daemon) versionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"go_version": runtime.Version(),
	})
}

func (d *Daemon) createInstanceHandler(w http.ResponseWriter, r *http.Request) {
	d.createOrPutInstance(w, r, "")
}

func (d *Daemon) putInstanceHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	d.createOrPutInstance(w, r, id)
}

func (d *Daemon) createOrPutInstance(w http.ResponseWriter, r *http.Request, id string) {
	var cfg api.VllmConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, api.NewError(api.KindBadRequest, "malformed request body: %v", err))
		return
	}

	res, err := d.registry.CreateInstance(cfg, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (d *Daemon) deleteInstanceHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	res, err := d.registry.StopInstance(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (d *Daemon) deleteAllInstancesHandler(w http.ResponseWriter, r *http.Request) {
	res := d.registry.StopAllInstances()
	writeJSON(w, http.StatusOK, res)
}

func (d *Daemon) listInstancesHandler(w http.ResponseWriter, r *http.Request) {
	detail, _ := strconv.ParseBool(r.URL.Query().Get("detail"))
	if detail {
		writeJSON(w, http.StatusOK, d.registry.GetAllInstancesStatus())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"instances": d.registry.ListInstances()})
}

func (d *Daemon) getInstanceHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, err := d.registry.GetInstanceStatus(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (d *Daemon) getInstanceLogHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var start int64
	var end *int64
	if header := r.Header.Get("Range"); header != "" {
		rng, err := rangeheader.Parse(header)
		if err != nil {
			writeError(w, err)
			return
		}
		start, end = rng.Start, rng.End
	}

	body, total, err := d.registry.GetLogBytes(id, start, end)
	if err != nil {
		if apiErr, ok := api.AsError(err); ok && apiErr.Kind == api.KindRangeNotSatisfiable {
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", apiErr.RangeTotal))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if r.Header.Get("Range") == "" {
		w.WriteHeader(http.StatusOK)
		bw := rpc.NewLogBodyWriter(w)
		_, _ = bw.Write(body)
		bw.Flush()
		return
	}

	last := start + int64(len(body)) - 1
	if len(body) == 0 {
		last = start
	}
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, last, total))
	w.WriteHeader(http.StatusPartialContent)
	bw := rpc.NewLogBodyWriter(w)
	_, _ = bw.Write(body)
	bw.Flush()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusForKind is the single place domain errors are translated into HTTP
// status codes, the rewrite direction spec.md §9 asks for explicitly in
// place of the source's ad hoc per-handler exception-to-status mapping.
func statusForKind(kind api.Kind) int {
	switch kind {
	case api.KindNotFound:
		return http.StatusNotFound
	case api.KindAlreadyExists:
		return http.StatusConflict
	case api.KindBadRequest:
		return http.StatusBadRequest
	case api.KindRangeNotSatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := api.AsError(err)
	if !ok {
		apiErr = api.NewError(api.KindInternal, "%v", err)
	}
	writeJSON(w, statusForKind(apiErr.Kind), map[string]string{"error": apiErr.Message})
}
