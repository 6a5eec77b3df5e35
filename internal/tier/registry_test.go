package tier

import (
	"errors"
	"testing"

	"github.com/mmeshcher/stakepool-system/internal/model"
)

func TestRateForDefaults(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		lockup int
		want   int64
	}{
		{0, 1000},
		{30, 1200},
		{90, 1500},
		{180, 2000},
		{365, 3000},
	}

	for _, tt := range tests {
		got, err := reg.RateFor(tt.lockup)
		if err != nil {
			t.Fatalf("RateFor(%d): unexpected error %v", tt.lockup, err)
		}
		if got != tt.want {
			t.Fatalf("RateFor(%d) = %d, want %d", tt.lockup, got, tt.want)
		}
	}
}

func TestRateForUnknownLockup(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.RateFor(45); !errors.Is(err, ErrInvalidLockupDuration) {
		t.Fatalf("expected ErrInvalidLockupDuration, got %v", err)
	}
}

func TestSetTierAPY(t *testing.T) {
	reg := NewRegistry()

	if err := reg.SetTierAPY(90, 1700); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := reg.RateFor(90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1700 {
		t.Fatalf("expected updated rate 1700, got %d", got)
	}
}

func TestSetTierAPYRejectsNewLockups(t *testing.T) {
	reg := NewRegistry()

	if err := reg.SetTierAPY(45, 1000); !errors.Is(err, ErrInvalidLockupDuration) {
		t.Fatalf("expected ErrInvalidLockupDuration for new lockup, got %v", err)
	}
	if err := reg.SetTierAPY(90, -1); err == nil {
		t.Fatalf("expected error for negative rate")
	}
}

func TestRarityMultiplier(t *testing.T) {
	reg := NewRegistry()

	if got := reg.RarityMultiplier(model.RarityLegendary); got != 20000 {
		t.Fatalf("legendary multiplier = %d, want 20000", got)
	}
	if got := reg.RarityMultiplier(model.Rarity("mythic")); got != 10000 {
		t.Fatalf("unknown rarity must default to x1.0, got %d", got)
	}
}

func TestActiveToggle(t *testing.T) {
	reg := NewRegistry()

	if !reg.Active() {
		t.Fatalf("new registry must be active")
	}
	reg.SetActive(false)
	if reg.Active() {
		t.Fatalf("registry must be inactive after SetActive(false)")
	}
}

func TestAdmissibleLockups(t *testing.T) {
	reg := NewRegistry()

	got := reg.AdmissibleLockups()
	want := []int{0, 30, 90, 180, 365}
	if len(got) != len(want) {
		t.Fatalf("lockups = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("lockups = %v, want %v", got, want)
		}
	}
}
