package transport

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestEncodeDecodeBatch_RoundTrip(t *testing.T) {
	msgs := []Message{
		&Request{Method: "initialize", ID: NumberID(1)},
		&Notification{Method: "notifications/initialized"},
	}
	data, err := EncodeBatch(msgs)
	if err != nil {
		t.Fatalf("EncodeBatch() error = %v", err)
	}
	got, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("DecodeBatch() error = %v", err)
	}
	if diff := cmp.Diff(msgs, got, cmpopts.EquateComparable(ID{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeBatch_SingleMessageIsNotWrappedInArray(t *testing.T) {
	data, err := EncodeBatch([]Message{&Notification{Method: "ping"}})
	if err != nil {
		t.Fatalf("EncodeBatch() error = %v", err)
	}
	if len(data) == 0 || data[0] != '{' {
		t.Errorf("EncodeBatch() of one message = %s, want a bare object", data)
	}
}

func TestDecodeBatch_EmptyBody(t *testing.T) {
	if _, err := DecodeBatch([]byte("  ")); err == nil {
		t.Error("DecodeBatch(empty) error = nil, want error")
	}
}

func TestRequestIDString(t *testing.T) {
	if got := NumberID(7).String(); got != "7" {
		t.Errorf("NumberID(7).String() = %q, want 7", got)
	}
	if got := StringID("abc").String(); got != "abc" {
		t.Errorf("StringID(abc).String() = %q, want abc", got)
	}
	if (ID{}).IsValid() {
		t.Error("zero ID.IsValid() = true, want false")
	}
}
