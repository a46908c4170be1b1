package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestFetchErrorMentionsManualUpload(t *testing.T) {
	err := &FetchError{Reason: FetchBlocked, URL: "https://shop.test/p/1", Attempts: make([]FetchAttempt, 4)}
	if !strings.Contains(err.Error(), "upload the product images manually") {
		t.Fatalf("expected remediation hint, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "4 attempts") {
		t.Fatalf("expected attempt count, got %q", err.Error())
	}
}

func TestPhaseErrorUnwrapAndHint(t *testing.T) {
	inner := &ExtractionError{Reason: "status 401"}
	err := &PhaseError{Phase: PhaseExtracting, Err: inner}

	var xe *ExtractionError
	if !errors.As(err, &xe) {
		t.Fatal("expected PhaseError to unwrap to ExtractionError")
	}
	if !strings.Contains(err.Hint(), "API key") {
		t.Fatalf("unexpected hint %q", err.Hint())
	}

	fetchErr := &PhaseError{Phase: PhaseFetching, Err: &FetchError{Reason: FetchTimeout}}
	if !strings.Contains(fetchErr.Hint(), "Upload product images") {
		t.Fatalf("unexpected hint %q", fetchErr.Hint())
	}
}

func TestRanksOrderTypesAndQuality(t *testing.T) {
	order := []ImageType{ImageMain, ImageGallery, ImageOG, ImageThumbnail, ImageUnknown}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Fatalf("%s should rank before %s", order[i-1], order[i])
		}
	}
	if !(QualityHigh.Rank() < QualityMedium.Rank() && QualityMedium.Rank() < QualityLow.Rank()) {
		t.Fatal("quality ranks out of order")
	}
}

func TestNoticesDeduplicateByKey(t *testing.T) {
	var ns Notices
	if !ns.Add(Notice{Key: "permission", Message: "first"}) {
		t.Fatal("first notice should be added")
	}
	if ns.Add(Notice{Key: "permission", Message: "second"}) {
		t.Fatal("duplicate key should be ignored")
	}
	list := ns.List()
	if len(list) != 1 || list[0].Message != "first" {
		t.Fatalf("unexpected notices %+v", list)
	}
}
