package validation

import (
	"strings"
	"testing"
)

func validRegister() *RegisterNodeRequest {
	return &RegisterNodeRequest{
		FormationID:       "default",
		GroupID:           -1,
		Name:              "db1.example.com",
		Port:              5432,
		Kind:              "plain",
		CandidatePriority: 100,
		ReplicationQuorum: true,
	}
}

func TestValidateRegisterNodeRequest(t *testing.T) {
	if err := ValidateRegisterNodeRequest(validRegister()); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*RegisterNodeRequest)
	}{
		{"missing formation", func(r *RegisterNodeRequest) { r.FormationID = "" }},
		{"missing name", func(r *RegisterNodeRequest) { r.Name = "" }},
		{"bad characters in name", func(r *RegisterNodeRequest) { r.Name = "db one!" }},
		{"port too large", func(r *RegisterNodeRequest) { r.Port = 70000 }},
		{"port missing", func(r *RegisterNodeRequest) { r.Port = 0 }},
		{"priority above bound", func(r *RegisterNodeRequest) { r.CandidatePriority = 101 }},
		{"priority negative", func(r *RegisterNodeRequest) { r.CandidatePriority = -1 }},
		{"unknown kind", func(r *RegisterNodeRequest) { r.Kind = "spread" }},
		{"group below -1", func(r *RegisterNodeRequest) { r.GroupID = -2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRegister()
			tt.mutate(req)
			if err := ValidateRegisterNodeRequest(req); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := ValidateRegisterNodeRequest(nil); err == nil {
		t.Error("nil request must be rejected")
	}
}

func TestValidateNodeActiveRequest(t *testing.T) {
	valid := &NodeActiveRequest{
		FormationID:   "default",
		NodeID:        1,
		Name:          "db1",
		Port:          5432,
		ReportedState: "secondary",
		PgIsRunning:   true,
		ReportedLSN:   4096,
		SyncState:     "quorum",
	}
	if err := ValidateNodeActiveRequest(valid); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	missingState := *valid
	missingState.ReportedState = ""
	if err := ValidateNodeActiveRequest(&missingState); err == nil {
		t.Error("missing reported state must be rejected")
	}

	badSync := *valid
	badSync.SyncState = "sometimes"
	if err := ValidateNodeActiveRequest(&badSync); err == nil {
		t.Error("unknown sync state must be rejected")
	}

	// empty sync state is what standbys report before streaming starts
	emptySync := *valid
	emptySync.SyncState = ""
	if err := ValidateNodeActiveRequest(&emptySync); err != nil {
		t.Errorf("empty sync state rejected: %v", err)
	}
}

func TestValidateReplicationSettingsRequest(t *testing.T) {
	if err := ValidateReplicationSettingsRequest(&ReplicationSettingsRequest{
		CandidatePriority: 50,
		ReplicationQuorum: true,
	}); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	if err := ValidateReplicationSettingsRequest(&ReplicationSettingsRequest{
		CandidatePriority: 200,
	}); err == nil {
		t.Error("priority above bound must be rejected")
	}
}

func TestValidationErrorNamesTheField(t *testing.T) {
	req := validRegister()
	req.FormationID = ""

	err := ValidateRegisterNodeRequest(req)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "FormationID") {
		t.Errorf("error %q does not name the field", err)
	}
}
