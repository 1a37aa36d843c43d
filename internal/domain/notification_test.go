package domain_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/donorhub/notify-pipeline/internal/domain"
)

func TestCategoryIsValid(t *testing.T) {
	valid := []domain.Category{
		domain.CategoryDonationSuccess,
		domain.CategoryInfo,
		domain.CategorySuccess,
		domain.CategoryWarning,
		domain.CategoryError,
		domain.CategoryCustom,
	}
	for _, c := range valid {
		if !c.IsValid() {
			t.Errorf("expected %q to be valid", c)
		}
	}

	for _, c := range []domain.Category{"", "DONATION_SUCCESS", "spam"} {
		if c.IsValid() {
			t.Errorf("expected %q to be invalid", c)
		}
	}
}

func TestJobStateTerminal(t *testing.T) {
	terminal := map[domain.JobState]bool{
		domain.JobStateWaiting:      false,
		domain.JobStateActive:       false,
		domain.JobStateFailed:       false,
		domain.JobStateCompleted:    true,
		domain.JobStateDeadLettered: true,
	}
	for state, want := range terminal {
		if got := state.Terminal(); got != want {
			t.Errorf("%s: Terminal() = %v, want %v", state, got, want)
		}
	}
}

func TestEnqueueRequestValidate(t *testing.T) {
	req := domain.EnqueueRequest{Type: domain.JobTypeDonationSuccess}
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	req = domain.EnqueueRequest{Payload: map[string]any{"k": "v"}}
	if err := req.Validate(); !errors.Is(err, domain.ErrInvalidJobType) {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}
}

func TestBroadcastEventWireShape(t *testing.T) {
	data, err := json.Marshal(domain.BroadcastEvent{
		Recipient: "u1",
		Title:     "Donation Successful",
		Message:   "₹500 donated",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"recipient":"u1","title":"Donation Successful","message":"₹500 donated"}`
	if string(data) != want {
		t.Fatalf("wire shape drifted:\n got %s\nwant %s", data, want)
	}
}
