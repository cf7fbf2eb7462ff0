package services

import (
	"testing"

	"vehicle-pricer/models"
)

var testBand = PriceBand{Min: 50_000, Max: 20_000_000}

func TestNormalize(t *testing.T) {
	n := NewNormalizer(testBand)

	tests := []struct {
		raw    string
		want   models.PriceObservation
		wantOK bool
	}{
		{"1.250.000 TL", 1250000, true},
		{"₺ 985.500", 985500, true},
		{"1.250.000,60", 1250001, true},
		{"1,250,000.40", 1250000, true},
		{"1 250 000 TL", 1250000, true},
		{"1 250 000 TL", 1250000, true},
		{"Fiyat: 875.000 TL 2020 model", 875000, true},
		{"750000", 750000, true},
		{"12 TL", 0, false},
		{"49.999 TL", 0, false},
		{"25.000.000 TL", 0, false},
		{"", 0, false},
		{"Fiyat sorunuz", 0, false},
	}

	for _, tt := range tests {
		got, ok := n.Normalize(tt.raw)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Normalize(%q) = %d, %v; want %d, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalizeBandEdges(t *testing.T) {
	n := NewNormalizer(testBand)
	if _, ok := n.Normalize("50.000 TL"); !ok {
		t.Error("band minimum should be inclusive")
	}
	if _, ok := n.Normalize("20.000.000 TL"); !ok {
		t.Error("band maximum should be inclusive")
	}
}

func TestWithBand(t *testing.T) {
	n := NewNormalizer(testBand)
	wide := n.WithBand(PriceBand{Min: 1, Max: 100})

	if _, ok := wide.Normalize("12 TL"); !ok {
		t.Error("custom band should accept 12")
	}
	if _, ok := n.Normalize("12 TL"); ok {
		t.Error("original normalizer must keep its own band")
	}
}

func TestScanAmounts(t *testing.T) {
	text := "Opel Corsa 2020 45.000 km 875.000 TL Hatasız, tel 0532 111 22 33. Diğer ilan 910.500₺"
	got := ScanAmounts(text)
	if len(got) != 2 {
		t.Fatalf("ScanAmounts: got %d amounts (%+v), want 2", len(got), got)
	}
	if got[0].Raw != "875.000" || got[1].Raw != "910.500" {
		t.Errorf("ScanAmounts: got %q and %q", got[0].Raw, got[1].Raw)
	}
	if got[0].Offset >= got[1].Offset {
		t.Error("amounts should be returned in document order")
	}
}

func TestCollectorDedupesInOrder(t *testing.T) {
	c := NewNormalizer(testBand).NewCollector(0)

	for _, raw := range []string{"310.000 TL", "300.000 TL", "310.000 TL", "garbage", "300.000,00 TL", "295.000 TL"} {
		c.Add(raw)
	}

	want := []models.PriceObservation{310000, 300000, 295000}
	got := c.Values()
	if len(got) != len(want) {
		t.Fatalf("Values: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values[%d] = %d; want %d", i, got[i], want[i])
		}
	}
}

func TestCollectorLimit(t *testing.T) {
	c := NewNormalizer(testBand).NewCollector(2)

	c.Add("100.000 TL")
	c.Add("200.000 TL")
	if !c.Full() {
		t.Fatal("collector should be full at its limit")
	}
	if c.Add("300.000 TL") {
		t.Error("Add should refuse values once full")
	}
	if c.Len() != 2 {
		t.Errorf("Len: got %d, want 2", c.Len())
	}
}

func TestCollectorValuesNeverNil(t *testing.T) {
	c := NewNormalizer(testBand).NewCollector(10)
	if v := c.Values(); v == nil {
		t.Error("empty collector should return an empty, non-nil slice")
	}
}
