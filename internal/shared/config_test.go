package shared_test

import (
	"testing"

	"repuradar/internal/domain"
	"repuradar/internal/shared"
)

func TestParseImportTargets(t *testing.T) {
	targets := shared.ParseImportTargets("apple-maps:5:2:place-abc, facebook:7:-:page-123")
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d: %+v", len(targets), targets)
	}

	a := targets[0]
	if a.Platform != domain.PlatformAppleMaps || a.UserID != 5 || a.AccountID != "place-abc" {
		t.Fatalf("unexpected first target: %+v", a)
	}
	if a.LocationID == nil || *a.LocationID != 2 {
		t.Fatalf("expected location 2, got %+v", a.LocationID)
	}

	b := targets[1]
	if b.Platform != domain.PlatformFacebook || b.UserID != 7 || b.LocationID != nil {
		t.Fatalf("unexpected second target: %+v", b)
	}
}

func TestParseImportTargets_DropsMalformed(t *testing.T) {
	targets := shared.ParseImportTargets("nope:1:2:x,apple-maps:bad:2:x,apple-maps:5:2:,yelp:3:-:biz-1")
	if len(targets) != 1 {
		t.Fatalf("expected 1 surviving target, got %d: %+v", len(targets), targets)
	}
	if targets[0].Platform != domain.PlatformYelp || targets[0].UserID != 3 {
		t.Fatalf("unexpected target: %+v", targets[0])
	}
}

func TestParseImportTargets_Empty(t *testing.T) {
	if got := shared.ParseImportTargets(""); got != nil {
		t.Fatalf("expected nil for empty input, got %+v", got)
	}
}
