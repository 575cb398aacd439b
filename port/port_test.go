package port

import (
	"testing"

	"github.com/oxplot/usbpd/pdmsg"
)

func TestNewPortDefaults(t *testing.T) {
	p := New(0)
	if p.Index != 0 {
		t.Fatalf("Index = %d, want 0", p.Index)
	}
	if p.SrcCaps.Valid() {
		t.Fatal("fresh port should have invalid (unretrieved) SrcCaps")
	}
	if p.SnkCaps.Valid() {
		t.Fatal("fresh port should have invalid (unretrieved) SnkCaps")
	}
	if p.Contract.Explicit {
		t.Fatal("fresh port should have no explicit contract")
	}
}

func TestFlagSetClearHas(t *testing.T) {
	p := New(0)
	if p.HasFlag(FlagExplicitContract) {
		t.Fatal("HasFlag true before SetFlag")
	}
	p.SetFlag(FlagExplicitContract)
	if !p.HasFlag(FlagExplicitContract) {
		t.Fatal("HasFlag false after SetFlag")
	}
	p.ClearFlag(FlagExplicitContract)
	if p.HasFlag(FlagExplicitContract) {
		t.Fatal("HasFlag true after ClearFlag")
	}
}

func TestDPMRequestConsumeIsOneShot(t *testing.T) {
	p := New(0)
	p.RequestFromDPM(DPMRequestGetSourceCap)

	if !p.ConsumeRequest(DPMRequestGetSourceCap) {
		t.Fatal("ConsumeRequest = false for a pending request")
	}
	if p.ConsumeRequest(DPMRequestGetSourceCap) {
		t.Fatal("ConsumeRequest should return false once the request was already consumed")
	}
}

func TestNextTxIDWraps(t *testing.T) {
	p := New(0)
	var last uint8
	for i := 0; i < 9; i++ {
		last = p.NextTxID(pdmsg.SOP)
	}
	if last > 7 {
		t.Fatalf("NextTxID returned %d, want a 3-bit value", last)
	}
}

func TestDetachInvalidatesContractDiscoveryAndFlags(t *testing.T) {
	p := New(0)
	p.SetFlag(FlagExplicitContract)
	p.Contract = Contract{Explicit: true, MV: 5000, MA: 3000}
	p.SrcCaps = Caps{Count: 2}
	p.Discovery[pdmsg.SOP].IdentityReceived = true

	p.Detach()

	if p.HasFlag(FlagExplicitContract) {
		t.Fatal("Detach should clear PE flags")
	}
	if p.Contract.Explicit {
		t.Fatal("Detach should invalidate the contract")
	}
	if p.SrcCaps.Valid() {
		t.Fatal("Detach should invalidate SrcCaps")
	}
	if p.Discovery[pdmsg.SOP].IdentityReceived {
		t.Fatal("Detach should clear discovery state")
	}
}

func TestCapsValidDistinguishesFailedFromEmpty(t *testing.T) {
	failed := Caps{Count: -1}
	empty := Caps{Count: 0}
	if failed.Valid() {
		t.Fatal("Count -1 (retrieval failed) should not be Valid")
	}
	if !empty.Valid() {
		t.Fatal("Count 0 (advertises nothing) should be Valid")
	}
}
