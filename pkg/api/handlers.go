package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dd0wney/cluso-failover/pkg/coordinator"
	"github.com/dd0wney/cluso-failover/pkg/fsm"
	"github.com/dd0wney/cluso-failover/pkg/store"
	"github.com/dd0wney/cluso-failover/pkg/validation"
)

// NodeResponse is the wire form of a node row
type NodeResponse struct {
	NodeID            int64  `json:"node_id"`
	FormationID       string `json:"formation_id"`
	GroupID           int    `json:"group_id"`
	Name              string `json:"name"`
	Port              int    `json:"port"`
	GoalState         string `json:"goal_state"`
	ReportedState     string `json:"reported_state"`
	Health            string `json:"health"`
	ReportedLSN       uint64 `json:"reported_lsn"`
	CandidatePriority int    `json:"candidate_priority"`
	ReplicationQuorum bool   `json:"replication_quorum"`
}

func nodeToResponse(node *fsm.Node) *NodeResponse {
	return &NodeResponse{
		NodeID:            node.NodeID,
		FormationID:       node.FormationID,
		GroupID:           node.GroupID,
		Name:              node.Name,
		Port:              node.Port,
		GoalState:         node.GoalState.String(),
		ReportedState:     node.ReportedState.String(),
		Health:            node.Health.String(),
		ReportedLSN:       node.ReportedLSN,
		CandidatePriority: node.CandidatePriority,
		ReplicationQuorum: node.ReplicationQuorum,
	}
}

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req validation.RegisterNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validation.ValidateRegisterNodeRequest(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	kind := fsm.KindPlain
	if req.Kind != "" {
		var err error
		if kind, err = fsm.ParseFormationKind(req.Kind); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	node, err := s.coordinator.RegisterNode(r.Context(), &coordinator.RegisterRequest{
		FormationID:       req.FormationID,
		GroupID:           req.GroupID,
		Name:              req.Name,
		Port:              req.Port,
		Kind:              kind,
		CandidatePriority: req.CandidatePriority,
		ReplicationQuorum: req.ReplicationQuorum,
	})
	if err != nil {
		s.respondError(w, registrationStatus(err), err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, nodeToResponse(node))
}

func (s *Server) handleNodeActive(w http.ResponseWriter, r *http.Request) {
	var req validation.NodeActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validation.ValidateNodeActiveRequest(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reportedState, err := fsm.ParseReplicationState(req.ReportedState)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	node, err := s.coordinator.NodeActive(r.Context(), &coordinator.ActiveRequest{
		FormationID:   req.FormationID,
		NodeID:        req.NodeID,
		Name:          req.Name,
		Port:          req.Port,
		ReportedState: reportedState,
		PgIsRunning:   req.PgIsRunning,
		ReportedLSN:   req.ReportedLSN,
		SyncState:     fsm.ParseSyncState(req.SyncState),
	})
	if err != nil {
		s.respondError(w, operationStatus(err), err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, nodeToResponse(node))
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	nodeID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid node id")
		return
	}

	if err := s.coordinator.RemoveNode(r.Context(), nodeID); err != nil {
		s.respondError(w, operationStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleReplicationSettings(w http.ResponseWriter, r *http.Request) {
	nodeID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid node id")
		return
	}

	var req validation.ReplicationSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validation.ValidateReplicationSettingsRequest(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.coordinator.SetReplicationSettings(r.Context(),
		nodeID, req.CandidatePriority, req.ReplicationQuorum); err != nil {
		s.respondError(w, operationStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, nil)
}

func (s *Server) handleGetNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.coordinator.GetNodes(r.Context(), r.PathValue("formation"))
	if err != nil {
		s.respondError(w, operationStatus(err), err.Error())
		return
	}

	responses := make([]*NodeResponse, 0, len(nodes))
	for _, node := range nodes {
		responses = append(responses, nodeToResponse(node))
	}
	s.respondJSON(w, http.StatusOK, responses)
}

func (s *Server) handleGetPrimary(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.Atoi(r.PathValue("group"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	node, err := s.coordinator.GetPrimary(r.Context(), r.PathValue("formation"), groupID)
	if err != nil {
		s.respondError(w, operationStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, nodeToResponse(node))
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			s.respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}

	recent, err := s.store.RecentEvents(r.Context(), r.PathValue("formation"), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, recent)
}

// registrationStatus maps registration errors to HTTP statuses. The
// one-standby-at-a-time conflicts are retryable and come back as 409.
func registrationStatus(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrRegistrationInProgress),
		errors.Is(err, coordinator.ErrPrimaryNotReady):
		return http.StatusConflict
	case errors.Is(err, coordinator.ErrInvalidPriority),
		errors.Is(err, coordinator.ErrInvalidGroup),
		errors.Is(err, coordinator.ErrKindMismatch),
		errors.Is(err, coordinator.ErrSecondaryDisabled):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrFormationNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrNodeExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// operationStatus maps coordinator errors to HTTP statuses
func operationStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNodeNotFound),
		errors.Is(err, store.ErrFormationNotFound):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrNodeIDMismatch),
		errors.Is(err, coordinator.ErrInvalidPriority):
		return http.StatusBadRequest
	case errors.Is(err, coordinator.ErrPrimaryNotReady):
		return http.StatusConflict
	case errors.Is(err, fsm.ErrPrimaryNotFound):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
