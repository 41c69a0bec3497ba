package models

import (
	"testing"
	"time"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    RequestStatus
		to      RequestStatus
		wantErr bool
	}{
		// Valid transitions
		{"Pending to Approved", RequestStatusPending, RequestStatusApproved, false},
		{"Pending to Rejected", RequestStatusPending, RequestStatusRejected, false},

		// Invalid transitions
		{"Pending to Pending", RequestStatusPending, RequestStatusPending, true},
		{"Approved to Rejected", RequestStatusApproved, RequestStatusRejected, true},
		{"Approved to Pending", RequestStatusApproved, RequestStatusPending, true},
		{"Rejected to Approved", RequestStatusRejected, RequestStatusApproved, true},
		{"Rejected to Rejected", RequestStatusRejected, RequestStatusRejected, true},
		{"Unknown source", RequestStatus("cancelled"), RequestStatusApproved, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransition(%v, %v) error = %v, wantErr %v",
					tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestIsTerminalStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   RequestStatus
		expected bool
	}{
		{"Approved is terminal", RequestStatusApproved, true},
		{"Rejected is terminal", RequestStatusRejected, true},
		{"Pending is not terminal", RequestStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTerminalStatus(tt.status); got != tt.expected {
				t.Errorf("IsTerminalStatus(%v) = %v, expected %v", tt.status, got, tt.expected)
			}
		})
	}
}

func TestBlocksDate(t *testing.T) {
	if !BlocksDate(RequestStatusPending) || !BlocksDate(RequestStatusApproved) {
		t.Error("pending and approved requests must occupy their date")
	}
	if BlocksDate(RequestStatusRejected) {
		t.Error("rejected requests must free their date")
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    RequestStatus
		wantErr bool
	}{
		{"approved", RequestStatusApproved, false},
		{"Approved", RequestStatusApproved, false},
		{" REJECTED ", RequestStatusRejected, false},
		{"pending", RequestStatusPending, false},
		{"done", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAction(t *testing.T) {
	if s, ok := ParseAction("approve"); !ok || s != RequestStatusApproved {
		t.Errorf("approve -> %v, %v", s, ok)
	}
	if s, ok := ParseAction("Reject"); !ok || s != RequestStatusRejected {
		t.Errorf("Reject -> %v, %v", s, ok)
	}
	for _, bad := range []string{"", "approved", "delete"} {
		if _, ok := ParseAction(bad); ok {
			t.Errorf("ParseAction(%q) should fail", bad)
		}
	}
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2024-03-15")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.String() != "2024-03-15" {
		t.Errorf("String() = %s", d.String())
	}
	if d.Display() != "15/03/2024" {
		t.Errorf("Display() = %s", d.Display())
	}
	if !d.Equal(NewDate(2024, time.March, 15)) {
		t.Error("ParseDate and NewDate disagree")
	}

	if _, err := ParseDate("15/03/2024"); err == nil {
		t.Error("expected error for non ISO date")
	}

	var decoded Date
	if err := decoded.UnmarshalJSON([]byte(`"2024-03-15"`)); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if !decoded.Equal(d) {
		t.Errorf("decoded %s, want %s", decoded, d)
	}
}
