package notify

import (
	"errors"
	"strings"
	"testing"

	"github.com/autotester/autotester/internal/catalog"
	"github.com/autotester/autotester/internal/reconcile"
)

func TestFormatSummaries(t *testing.T) {
	summaries := []reconcile.Summary{
		{
			Service: catalog.Service{Name: "regridder", ConceptID: "S1"},
			Created: 2,
			Updated: 1,
		},
		{
			Service: catalog.Service{Name: "subsetter", ConceptID: "S2"},
			Failed:  1,
			Results: []reconcile.PairingResult{
				{Key: "S2/C-X", Err: errors.New("rate limited")},
			},
		},
	}

	message := FormatSummaries("production", summaries)

	if !strings.Contains(message, "*Autotester reconciliation (production)*") {
		t.Errorf("expected header, got %q", message)
	}
	if !strings.Contains(message, ":white_check_mark: regridder: created 2, updated 1") {
		t.Errorf("expected clean service line, got %q", message)
	}
	if !strings.Contains(message, ":red_circle: subsetter") {
		t.Errorf("expected failed service line, got %q", message)
	}
	if !strings.Contains(message, "S2/C-X: rate limited") {
		t.Errorf("expected per-pairing error detail, got %q", message)
	}
	if strings.HasSuffix(message, "\n") {
		t.Error("message should not end with a newline")
	}
}

func TestNewNotifier_Unconfigured(t *testing.T) {
	if NewNotifier("", "alerts") != nil {
		t.Error("expected nil notifier without a token")
	}
	if NewNotifier("xoxb-token", "") != nil {
		t.Error("expected nil notifier without a channel")
	}

	// Posting through a nil notifier is a safe no-op.
	var n *Notifier
	n.Post("production", nil)
}
