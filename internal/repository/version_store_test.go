package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/neofi/eventapi/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	for _, n := range []int64{1, 42, 1 << 40} {
		decoded, err := DecodeCursor(EncodeCursor(n))
		if err != nil {
			t.Fatalf("decode failed for %d: %v", n, err)
		}
		if decoded != n {
			t.Errorf("round trip %d -> %d", n, decoded)
		}
	}
}

func TestDecodeCursorEmpty(t *testing.T) {
	n, err := DecodeCursor("")
	if err != nil || n != 0 {
		t.Fatalf("empty cursor must decode to 0, got %d %v", n, err)
	}
}

func TestDecodeCursorMalformed(t *testing.T) {
	for _, cursor := range []string{"not-base64!", "djot", EncodeCursor(0), "dGl0bGU"} {
		if _, err := DecodeCursor(cursor); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("cursor %q: expected validation error, got %v", cursor, err)
		}
	}
}

func TestMapStorageErr(t *testing.T) {
	eventID := uuid.New()

	err := mapStorageErr(fmt.Errorf("query: %w", context.DeadlineExceeded), eventID)
	if !errors.Is(err, domain.ErrStorageTimeout) {
		t.Errorf("deadline expiry must map to storage timeout, got %v", err)
	}

	err = mapStorageErr(&pgconn.PgError{Code: uniqueViolation}, eventID)
	if !errors.Is(err, domain.ErrConcurrentModification) {
		t.Errorf("unique violation must map to concurrent modification, got %v", err)
	}

	plain := errors.New("connection refused")
	if got := mapStorageErr(plain, eventID); got != plain {
		t.Errorf("unrelated errors must pass through, got %v", got)
	}
	if mapStorageErr(nil, eventID) != nil {
		t.Errorf("nil must stay nil")
	}
}
