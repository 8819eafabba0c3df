package internalerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	var err error = &UnsupportedEntityError{Language: "de", Entity: "snips/musicAlbum"}
	wrapped := fmt.Errorf("get parser: %w", err)
	if !errors.Is(wrapped, ErrUnsupportedEntity) {
		t.Errorf("expected ErrUnsupportedEntity, got %v", wrapped)
	}
	var unsupported *UnsupportedEntityError
	if !errors.As(wrapped, &unsupported) || unsupported.Language != "de" {
		t.Errorf("errors.As failed: %v", wrapped)
	}

	err = &ResourceNotFoundError{Language: "en", Entity: "snips/musicArtist"}
	if !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestResourceNotFoundMessageDrivesRemediation(t *testing.T) {
	err := &ResourceNotFoundError{Language: "fr", Entity: "snips/city"}
	msg := err.Error()
	for _, want := range []string{"snips/city", "fr", "gazette resources install snips/city fr"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q should mention %q", msg, want)
		}
	}
}
