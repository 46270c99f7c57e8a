package httputil

import (
	"errors"
	"strings"
	"testing"
)

func TestReadLimitedBody_AllowsWithinLimit(t *testing.T) {
	body, err := ReadLimitedBody(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("unexpected body: %s", string(body))
	}
}

func TestReadLimitedBody_RejectsOversize(t *testing.T) {
	body, err := ReadLimitedBody(strings.NewReader("helloworld"), 5)
	if !errors.Is(err, ErrResponseBodyTooLarge) {
		t.Fatalf("expected ErrResponseBodyTooLarge, got %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("unexpected body: %s", string(body))
	}
}

type trackingBody struct {
	*strings.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestDrainAndClose_ConsumesAndCloses(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("leftover bytes")}
	DrainAndClose(body)
	if !body.closed {
		t.Fatal("expected body to be closed")
	}
	if body.Len() != 0 {
		t.Fatalf("expected body drained, %d bytes left", body.Len())
	}
}

func TestDrainAndClose_NilBody(t *testing.T) {
	DrainAndClose(nil)
}
