// Package clientapi exposes the client message vocabulary of spec.md
// §6 (ClientReadRequest/ClientUpdateRequest/ClientLeaveRequest and
// their responses) over a REST surface, grounded on the teacher's
// KademliaRESTHandler (src/server/service/rest_handler.go): go-chi for
// routing, go-chi/render for JSON encode/decode.
package clientapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"github.com/ringkv/ringkv/internal/clientmsg"
	"github.com/ringkv/ringkv/internal/model"
)

// Node is the capability the REST layer needs from a node.Dispatcher.
type Node interface {
	ClientRead(ctx context.Context, key model.Key) (clientmsg.Response, error)
	ClientUpdate(ctx context.Context, key model.Key, value string) (clientmsg.Response, error)
	ClientLeave(ctx context.Context) (clientmsg.Response, error)
}

// Handler adapts incoming HTTP requests onto Node's client operations.
type Handler struct {
	node Node
	log  *logrus.Entry
}

// NewHandler constructs a Handler.
func NewHandler(node Node, log *logrus.Entry) *Handler {
	return &Handler{node: node, log: log}
}

// Router builds the chi mux: GET/PUT on /data/{key}, POST on /leave.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(
		render.SetContentType(render.ContentTypeJSON),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	r.Get("/data/{key}", h.GetData)
	r.Put("/data/{key}", h.PutData)
	r.Post("/leave", h.Leave)
	return r
}

type readPayload struct {
	NodeID int    `json:"nodeId"`
	Key    int    `json:"key"`
	Value  string `json:"value,omitempty"`
	Found  bool   `json:"found"`
}

type updateBody struct {
	Value string `json:"value"`
}

type updatePayload struct {
	NodeID  int    `json:"nodeId"`
	Key     int    `json:"key"`
	Value   string `json:"value"`
	Version int    `json:"version"`
}

type leavePayload struct {
	NodeID int `json:"nodeId"`
}

type errorPayload struct {
	NodeID  int    `json:"nodeId"`
	Message string `json:"message"`
}

// GetData answers ClientReadRequest. A malformed key is a 400; a
// node-level operation error (InsufficientNodes, QuorumTimeout) is a
// 503 carrying the error message.
func (h *Handler) GetData(w http.ResponseWriter, r *http.Request) {
	key, err := strconv.Atoi(chi.URLParam(r, "key"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	resp, err := h.node.ClientRead(r.Context(), model.Key(key))
	if err != nil {
		h.log.WithError(err).Warn("read request did not complete")
		w.WriteHeader(http.StatusGatewayTimeout)
		return
	}
	switch m := resp.(type) {
	case clientmsg.ReadResponse:
		if !m.Found {
			w.WriteHeader(http.StatusNotFound)
		}
		render.JSON(w, r, readPayload{NodeID: int(m.NodeID), Key: int(m.Key), Value: m.Value, Found: m.Found})
	case clientmsg.OperationError:
		w.WriteHeader(http.StatusServiceUnavailable)
		render.JSON(w, r, errorPayload{NodeID: int(m.NodeID), Message: m.Message})
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// PutData answers ClientUpdateRequest.
func (h *Handler) PutData(w http.ResponseWriter, r *http.Request) {
	key, err := strconv.Atoi(chi.URLParam(r, "key"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var body updateBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	resp, err := h.node.ClientUpdate(r.Context(), model.Key(key), body.Value)
	if err != nil {
		h.log.WithError(err).Warn("update request did not complete")
		w.WriteHeader(http.StatusGatewayTimeout)
		return
	}
	switch m := resp.(type) {
	case clientmsg.UpdateResponse:
		render.JSON(w, r, updatePayload{NodeID: int(m.NodeID), Key: int(m.Key), Value: m.Item.Value, Version: m.Item.Version})
	case clientmsg.OperationError:
		w.WriteHeader(http.StatusServiceUnavailable)
		render.JSON(w, r, errorPayload{NodeID: int(m.NodeID), Message: m.Message})
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// Leave answers ClientLeaveRequest. The node shuts down once this
// returns successfully.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	resp, err := h.node.ClientLeave(r.Context())
	if err != nil {
		h.log.WithError(err).Warn("leave request did not complete")
		w.WriteHeader(http.StatusGatewayTimeout)
		return
	}
	switch m := resp.(type) {
	case clientmsg.LeaveResponse:
		render.JSON(w, r, leavePayload{NodeID: int(m.NodeID)})
	case clientmsg.OperationError:
		w.WriteHeader(http.StatusServiceUnavailable)
		render.JSON(w, r, errorPayload{NodeID: int(m.NodeID), Message: m.Message})
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}
