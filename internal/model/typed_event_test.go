package model

import (
	"math/big"
	"testing"
)

func TestEventTypeNamesRoundTrip(t *testing.T) {
	seen := make(map[string]struct{})
	for _, typ := range AllEventTypes {
		name := typ.String()
		if name == "Unknown" {
			t.Fatalf("event type %d has no name", typ)
		}
		if _, dup := seen[name]; dup {
			t.Fatalf("duplicate event name %s", name)
		}
		seen[name] = struct{}{}
		if ParseEventType(name) != typ {
			t.Fatalf("parse mismatch for %s", name)
		}
	}
	if ParseEventType("Transfer") != EventUnknown {
		t.Fatalf("expected unknown for unrelated name")
	}
}

func TestNewEventTypeFollowsArgs(t *testing.T) {
	log := RawLog{BlockNumber: 100, LogIndex: 3, TxHash: "0xabc", Address: "0x1"}
	ev := NewEvent(ProtocolNative, log, ListingCancelledArgs{ListingID: big.NewInt(42)})

	if ev.Type != EventListingCancelled {
		t.Fatalf("type mismatch: %s", ev.Type)
	}
	if ev.BlockNumber != 100 || ev.LogIndex != 3 || ev.TxHash != "0xabc" {
		t.Fatalf("provenance mismatch: %+v", ev)
	}
}
