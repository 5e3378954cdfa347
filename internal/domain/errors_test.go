package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsVersionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "version conflict error",
			err:  ErrOrderVersionConflict,
			want: true,
		},
		{
			name: "wrapped version conflict error",
			err:  errors.Join(ErrOrderVersionConflict, errors.New("additional context")),
			want: true,
		},
		{
			name: "other error",
			err:  ErrOrderNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsVersionConflict(tt.err)
			if got != tt.want {
				t.Errorf("IsVersionConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsPrecondition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "already sent", err: ErrAlreadySent, want: true},
		{name: "not yet sold", err: ErrNotYetSold, want: true},
		{name: "already refunded", err: ErrAlreadyRefunded, want: true},
		{name: "wrapped linkage", err: fmt.Errorf("refund: %w", ErrMissingInvoiceLinkage), want: true},
		{name: "configuration is not a precondition", err: ErrConfigurationMissing, want: false},
		{name: "transport", err: ErrTransport, want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPrecondition(tt.err); got != tt.want {
				t.Errorf("IsPrecondition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRemoteFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "transport", err: fmt.Errorf("post sale: %w", ErrTransport), want: true},
		{name: "rejected", err: ErrRemoteRejected, want: true},
		{name: "malformed", err: ErrMalformedResponse, want: true},
		{name: "precondition", err: ErrAlreadySent, want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRemoteFailure(tt.err); got != tt.want {
				t.Errorf("IsRemoteFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDeliveryConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "already exists", err: ErrDeliveryAlreadyExists, want: true},
		{name: "hash mismatch", err: ErrDeliveryHashMismatch, want: true},
		{name: "not found", err: ErrDeliveryNotFound, want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDeliveryConflict(tt.err); got != tt.want {
				t.Errorf("IsDeliveryConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}
