package process

import "testing"

func TestTopN_StableOrderingByScoreThenName(t *testing.T) {
	c := NewCollector(100)
	c.accum = map[string]float64{
		"zzz": 10,
		"aaa": 10,
		"mmm": 20,
	}

	got := c.TopN("2026-07-30", 10, 1.0)

	if len(got) != 3 {
		t.Fatalf("TopN() len = %d, want 3", len(got))
	}
	if got[0].Name != "mmm" || got[0].Rank != 1 {
		t.Fatalf("got[0] = %#v, want mmm at rank 1", got[0])
	}
	// "aaa" and "zzz" tie at cpuSecs=10; name ascending breaks the tie.
	if got[1].Name != "aaa" || got[2].Name != "zzz" {
		t.Fatalf("tie order = [%s,%s], want [aaa,zzz]", got[1].Name, got[2].Name)
	}
}

func TestTopN_ClampsToN(t *testing.T) {
	c := NewCollector(100)
	c.accum = map[string]float64{"a": 1, "b": 2, "c": 3}

	got := c.TopN("2026-07-30", 2, 1.0)
	if len(got) != 2 {
		t.Fatalf("TopN() len = %d, want 2", len(got))
	}
	if got[0].Name != "c" || got[1].Name != "b" {
		t.Fatalf("got = %#v, want [c,b]", got)
	}
}

func TestTopN_DefaultCoefficientWhenNonPositive(t *testing.T) {
	c := NewCollector(100)
	c.accum = map[string]float64{"a": 5}

	got := c.TopN("2026-07-30", 1, 0)
	if got[0].EnergyScore != 5*DefaultEnergyCoefficient {
		t.Fatalf("EnergyScore = %v, want %v", got[0].EnergyScore, 5*DefaultEnergyCoefficient)
	}
}

func TestResetDay_ClearsAccumulation(t *testing.T) {
	c := NewCollector(100)
	c.accum = map[string]float64{"a": 5}

	c.ResetDay()

	got := c.TopN("2026-07-30", 10, 1.0)
	if len(got) != 0 {
		t.Fatalf("TopN() after ResetDay() len = %d, want 0", len(got))
	}
}
