package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/joakim000/grow/internal/control"
	"github.com/joakim000/grow/internal/device"
)

// deviceView is one device as exposed by the status API: its inventory
// record plus the latest snapshot of the control loop, if it is polled.
type deviceView struct {
	Kind     device.Kind       `json:"kind"`
	ID       int               `json:"id"`
	Settings device.Settings   `json:"settings,omitempty"`
	Status   *control.Snapshot `json:"status,omitempty"`
}

// handleListDevices returns every device in inventory order.
// The optional ?kind= query parameter filters by device kind.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var filter device.Kind
	if kindStr := r.URL.Query().Get("kind"); kindStr != "" {
		kind, err := device.ParseKind(kindStr)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		filter = kind
	}

	status := s.statusByRef()
	devices := make([]deviceView, 0, s.registry.Len())
	for _, ref := range s.registry.Refs() {
		if filter != "" && ref.Kind != filter {
			continue
		}
		d, err := s.registry.Get(ref.Kind, ref.ID)
		if err != nil {
			continue
		}
		devices = append(devices, newDeviceView(d, status))
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by kind and id.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseRef(w, r)
	if !ok {
		return
	}

	d, err := s.registry.Get(ref.Kind, ref.ID)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, newDeviceView(d, s.statusByRef()))
}

func (s *Server) statusByRef() map[device.Ref]control.Snapshot {
	snapshots := s.status.Status()
	out := make(map[device.Ref]control.Snapshot, len(snapshots))
	for _, snap := range snapshots {
		out[snap.Device] = snap
	}
	return out
}

func newDeviceView(d device.Device, status map[device.Ref]control.Snapshot) deviceView {
	v := deviceView{Kind: d.Kind, ID: d.ID}
	if _, passive := d.Settings.(device.Passive); !passive {
		v.Settings = d.Settings
	}
	if snap, ok := status[d.Ref()]; ok {
		v.Status = &snap
	}
	return v
}

// parseRef reads the {kind} and {id} URL parameters. On failure it writes
// a 400 response and returns false.
func parseRef(w http.ResponseWriter, r *http.Request) (device.Ref, bool) {
	kind, err := device.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return device.Ref{}, false
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		writeBadRequest(w, "invalid device id")
		return device.Ref{}, false
	}
	return device.Ref{Kind: kind, ID: id}, true
}
