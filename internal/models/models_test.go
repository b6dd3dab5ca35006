package models

import (
	"encoding/json"
	"testing"
)

func TestIDUnmarshalShapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ID
	}{
		{"string", `"64b7f0c2"`, "64b7f0c2"},
		{"padded string", `"  abc  "`, "abc"},
		{"number", `42`, "42"},
		{"populated object", `{"_id":"64b7f0c2","name":"Ann"}`, "64b7f0c2"},
		{"object with id", `{"id":7}`, "7"},
		{"null", `null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ID
			if err := json.Unmarshal([]byte(tt.input), &got); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestIDUnmarshalRejectsGarbage(t *testing.T) {
	for _, input := range []string{`{"name":"no id"}`, `true`, `[1,2]`} {
		var id ID
		if err := json.Unmarshal([]byte(input), &id); err == nil {
			t.Errorf("expected error for %s, got %q", input, id)
		}
	}
}

func TestDealParties(t *testing.T) {
	d := &Deal{OwnerID: "o", RenterID: "r"}

	if p, ok := d.PartyOf("o"); !ok || p != PartyOwner {
		t.Errorf("owner not recognised: %v %v", p, ok)
	}
	if p, ok := d.PartyOf("r"); !ok || p != PartyRenter {
		t.Errorf("renter not recognised: %v %v", p, ok)
	}
	if _, ok := d.PartyOf("x"); ok {
		t.Error("stranger recognised as a party")
	}
	if d.Counterparty(PartyOwner) != "r" || d.Counterparty(PartyRenter) != "o" {
		t.Error("counterparty mismatch")
	}

	d.Slot(PartyOwner).Signed = true
	if d.FullySigned() {
		t.Error("one signature must not complete the deal")
	}
	d.Slot(PartyRenter).Signed = true
	if !d.FullySigned() {
		t.Error("both signatures should complete the deal")
	}
}

func TestStatusPredicates(t *testing.T) {
	if !DealPending.Active() || !DealCompleted.Active() || DealCancelled.Active() {
		t.Error("active deal statuses are pending and completed only")
	}
	if !PropertyAvailable.OpenForDeals() || !PropertyPending.OpenForDeals() || PropertyRented.OpenForDeals() {
		t.Error("only available and pending properties accept deals")
	}
}

func TestTextUnmarshal(t *testing.T) {
	var v struct {
		A Text `json:"a"`
		B Text `json:"b"`
		C Text `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"x","b":1718000000000,"c":null}`), &v); err != nil {
		t.Fatal(err)
	}
	if v.A != "x" || v.B != "1718000000000" || v.C != "" {
		t.Errorf("unexpected values: %+v", v)
	}
}
