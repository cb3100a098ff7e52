package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// nodeNamePattern keeps node names to hostname-ish characters
	nodeNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

func init() {
	validate = validator.New()
}

// RegisterNodeRequest is the wire form of a node registration
type RegisterNodeRequest struct {
	FormationID       string `json:"formation_id" validate:"required,min=1,max=64"`
	GroupID           int    `json:"group_id" validate:"min=-1"`
	Name              string `json:"name" validate:"required,min=1,max=253"`
	Port              int    `json:"port" validate:"required,min=1,max=65535"`
	Kind              string `json:"kind" validate:"omitempty,oneof=plain sharded"`
	CandidatePriority int    `json:"candidate_priority" validate:"min=0,max=100"`
	ReplicationQuorum bool   `json:"replication_quorum"`
}

// NodeActiveRequest is the wire form of a heartbeat
type NodeActiveRequest struct {
	FormationID   string `json:"formation_id" validate:"required,min=1,max=64"`
	NodeID        int64  `json:"node_id" validate:"min=-1"`
	Name          string `json:"name" validate:"required,min=1,max=253"`
	Port          int    `json:"port" validate:"required,min=1,max=65535"`
	ReportedState string `json:"reported_state" validate:"required"`
	PgIsRunning   bool   `json:"pg_is_running"`
	ReportedLSN   uint64 `json:"reported_lsn"`
	SyncState     string `json:"sync_state" validate:"omitempty,oneof=sync async quorum potential"`
}

// ReplicationSettingsRequest is the wire form of a settings change
type ReplicationSettingsRequest struct {
	CandidatePriority int  `json:"candidate_priority" validate:"min=0,max=100"`
	ReplicationQuorum bool `json:"replication_quorum"`
}

// ValidateRegisterNodeRequest validates a registration request
func ValidateRegisterNodeRequest(req *RegisterNodeRequest) error {
	if req == nil {
		return errors.New("register request cannot be nil")
	}
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	if !nodeNamePattern.MatchString(req.Name) {
		return fmt.Errorf("Name: %q contains invalid characters", req.Name)
	}
	return nil
}

// ValidateNodeActiveRequest validates a heartbeat request
func ValidateNodeActiveRequest(req *NodeActiveRequest) error {
	if req == nil {
		return errors.New("node active request cannot be nil")
	}
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateReplicationSettingsRequest validates a settings change request
func ValidateReplicationSettingsRequest(req *ReplicationSettingsRequest) error {
	if req == nil {
		return errors.New("settings request cannot be nil")
	}
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError renders the first field error in a readable form
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fieldError := validationErrors[0]
		return fmt.Errorf("%s: failed validation on %q", fieldError.Field(), fieldError.Tag())
	}
	return err
}
