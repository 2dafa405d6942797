package mcp

import (
	"fmt"
	"testing"
)

func TestCursorRoundTrip(t *testing.T) {
	for _, offset := range []int{0, 1, DefaultPageSize, 12345} {
		cursor := encodeCursor(offset)
		got, err := decodeCursor(cursor)
		if err != nil {
			t.Fatalf("decodeCursor(%q) failed: %v", cursor, err)
		}
		if got != offset {
			t.Errorf("round trip %d -> %d", offset, got)
		}
	}
}

func TestCursorTamperDetection(t *testing.T) {
	cursor := encodeCursor(10)
	// Flip one character of the payload; the checksum no longer matches.
	tampered := "x" + cursor[1:]
	if _, err := decodeCursor(tampered); err == nil {
		t.Error("tampered cursor accepted")
	}
}

func TestPageSlicing(t *testing.T) {
	items := make([]int, 0, 25)
	for i := range 25 {
		items = append(items, i)
	}

	first, next, err := page(items, "", 10)
	if err != nil {
		t.Fatalf("page failed: %v", err)
	}
	if len(first) != 10 || first[0] != 0 || next == "" {
		t.Fatalf("first page = %v next=%q", first, next)
	}

	second, next, err := page(items, next, 10)
	if err != nil {
		t.Fatalf("page failed: %v", err)
	}
	if len(second) != 10 || second[0] != 10 {
		t.Fatalf("second page = %v", second)
	}

	third, next, err := page(items, next, 10)
	if err != nil {
		t.Fatalf("page failed: %v", err)
	}
	if len(third) != 5 || next != "" {
		t.Fatalf("third page = %v next=%q", third, next)
	}
}

func TestListAllPropagatesErrors(t *testing.T) {
	calls := 0
	_, err := ListAll(func(cursor string) ([]int, string, error) {
		calls++
		if calls == 2 {
			return nil, "", fmt.Errorf("boom")
		}
		return []int{1}, encodeCursor(calls), nil
	})
	if err == nil {
		t.Error("ListAll swallowed the page error")
	}
}
