package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jake-scott/hon-client/internal/pkg/appliance"
	"github.com/jake-scott/hon-client/internal/pkg/hon"
	"github.com/jake-scott/hon-client/internal/pkg/parameter"
)

// ApplianceHandler serves the JSON control API of a session
type ApplianceHandler struct {
	hon *hon.Hon
}

func NewApplianceHandler(h *hon.Hon) ApplianceHandler {
	return ApplianceHandler{hon: h}
}

// Register adds the routes to r
func (h *ApplianceHandler) Register(r *mux.Router) {
	r.HandleFunc("/appliances", h.List).Methods(http.MethodGet)
	r.HandleFunc("/appliances/{id}/settings", h.Settings).Methods(http.MethodGet)
	r.HandleFunc("/appliances/{id}/settings", h.SetSettings).Methods(http.MethodPut)
	r.HandleFunc("/appliances/{id}/commands", h.Commands).Methods(http.MethodGet)
	r.HandleFunc("/appliances/{id}/commands/{name}", h.Send).Methods(http.MethodPost)
	r.HandleFunc("/appliances/{id}/refresh", h.Refresh).Methods(http.MethodPost)
}

type applianceView struct {
	ID         string            `json:"id"`
	MacAddress string            `json:"macAddress"`
	Type       string            `json:"type"`
	ModelID    string            `json:"modelId"`
	ModelName  string            `json:"modelName"`
	Brand      string            `json:"brand"`
	NickName   string            `json:"nickName"`
	Zone       int               `json:"zone,omitempty"`
	Connected  bool              `json:"connected"`
	Attributes map[string]string `json:"attributes"`
}

func (h *ApplianceHandler) appliance(w http.ResponseWriter, r *http.Request) (*appliance.Appliance, bool) {
	id := mux.Vars(r)["id"]

	a, ok := h.hon.Appliance(id)
	if !ok {
		sendError(w, r, http.StatusNotFound, errors.Errorf("no appliance %s", id))
	}
	return a, ok
}

func (h *ApplianceHandler) List(w http.ResponseWriter, r *http.Request) {
	appliances := h.hon.Appliances()
	views := make([]applianceView, 0, len(appliances))

	for _, a := range appliances {
		views = append(views, applianceView{
			ID:         a.UniqueID(),
			MacAddress: a.MacAddress(),
			Type:       a.Type(),
			ModelID:    a.ModelID(),
			ModelName:  a.ModelName(),
			Brand:      a.Brand(),
			NickName:   a.NickName(),
			Zone:       a.Zone(),
			Connected:  a.Connected(),
			Attributes: a.AttributeValues(),
		})
	}

	sendJSONResponse(w, r, http.StatusOK, views)
}

func (h *ApplianceHandler) Settings(w http.ResponseWriter, r *http.Request) {
	a, ok := h.appliance(w, r)
	if !ok {
		return
	}

	sendJSONResponse(w, r, http.StatusOK, a.Settings())
}

// SetSettings applies a {"command.key": value} object.  Every entry is
// tried; failures are reported per key.
func (h *ApplianceHandler) SetSettings(w http.ResponseWriter, r *http.Request) {
	a, ok := h.appliance(w, r)
	if !ok {
		return
	}

	var body map[string]interface{}
	if err := decodeJSONBody(w, r, &body); err != nil {
		sendError(w, r, http.StatusBadRequest, err)
		return
	}

	names := make([]string, 0, len(body))
	for name := range body {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := map[string]string{}
	status := http.StatusOK
	for _, name := range names {
		if err := a.SetSetting(name, parameter.ToString(body[name])); err != nil {
			failed[name] = err.Error()
			if s := statusOf(err); s > status {
				status = s
			}
		}
	}

	if len(failed) > 0 {
		sendJSONResponse(w, r, status, errorResponse{Error: "some settings were not applied", Detail: failed})
		return
	}

	h.Settings(w, r)
}

func (h *ApplianceHandler) Commands(w http.ResponseWriter, r *http.Request) {
	a, ok := h.appliance(w, r)
	if !ok {
		return
	}

	sendJSONResponse(w, r, http.StatusOK, a.CommandParameters())
}

// Send posts a command.  ?mandatory=true restricts it to the mandatory
// parameters, ?parameters=a,b sends those plus the mandatory ones.
// ?sync=a,b copies the mandatory parameters of the sent command onto those
// commands afterwards.
func (h *ApplianceHandler) Send(w http.ResponseWriter, r *http.Request) {
	a, ok := h.appliance(w, r)
	if !ok {
		return
	}

	name := mux.Vars(r)["name"]
	query := r.URL.Query()
	mandatory, _ := strconv.ParseBool(query.Get("mandatory"))

	var err error
	if only := query.Get("parameters"); only != "" {
		_, err = a.SendSpecific(r.Context(), name, strings.Split(only, ","))
	} else {
		_, err = a.Send(r.Context(), name, mandatory)
	}
	if err != nil {
		sendError(w, r, statusOf(err), err)
		return
	}

	if targets := query.Get("sync"); targets != "" {
		a.SyncCommand(name, strings.Split(targets, ","), true)
	}

	sendJSONResponse(w, r, http.StatusOK, map[string]interface{}{
		"command":    name,
		"parameters": a.CommandParameters()[name],
	})
}

// Refresh reloads the telemetry, ?force=true skips the rate limit
func (h *ApplianceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	a, ok := h.appliance(w, r)
	if !ok {
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	updated, err := a.Update(r.Context(), force)
	if err != nil {
		sendError(w, r, statusOf(err), err)
		return
	}

	sendJSONResponse(w, r, http.StatusOK, map[string]interface{}{
		"updated":    updated,
		"attributes": a.AttributeValues(),
	})
}
