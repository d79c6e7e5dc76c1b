package amcp_test

import (
	"slices"
	"testing"

	"github.com/MegaGrindStone/go-amcp"
)

func TestOSCSubscriptions(t *testing.T) {
	osc := amcp.NewOSCSubscriptions()

	if err := osc.Subscribe("10.0.0.2", 6250); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := osc.Subscribe("10.0.0.2", 6250); err != nil {
		t.Fatalf("second Subscribe() error = %v", err)
	}
	if err := osc.Subscribe("::1", 7000); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	want := []string{"10.0.0.2:6250", "[::1]:7000"}
	if got := osc.Destinations(); !slices.Equal(got, want) {
		t.Errorf("Destinations() = %q, want %q", got, want)
	}

	if err := osc.Unsubscribe("10.0.0.2", 6250); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if got := osc.Destinations(); !slices.Equal(got, want) {
		t.Errorf("Destinations() after one of two unsubscriptions = %q, want %q", got, want)
	}

	if err := osc.Unsubscribe("10.0.0.2", 6250); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if got, want := osc.Destinations(), []string{"[::1]:7000"}; !slices.Equal(got, want) {
		t.Errorf("Destinations() = %q, want %q", got, want)
	}

	if err := osc.Unsubscribe("10.0.0.2", 6250); err == nil {
		t.Error("Unsubscribe() of an unknown destination succeeded")
	}
}

func TestOSCSubscriptionsInvalid(t *testing.T) {
	osc := amcp.NewOSCSubscriptions()

	tests := []struct {
		name    string
		address string
		port    int
	}{
		{name: "empty address", address: "", port: 6250},
		{name: "port zero", address: "10.0.0.2", port: 0},
		{name: "port too large", address: "10.0.0.2", port: 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := osc.Subscribe(tt.address, tt.port); err == nil {
				t.Errorf("Subscribe(%q, %d) succeeded", tt.address, tt.port)
			}
		})
	}

	if got := osc.Destinations(); len(got) != 0 {
		t.Errorf("Destinations() = %q, want none", got)
	}
}
