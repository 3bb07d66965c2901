package tokenizer_test

import (
	"errors"
	"strings"
	"testing"

	"agentscope/internal/tokenizer"
)

// wordCounter is a deterministic Counter for tests; real encodings require a
// downloaded vocabulary.
type wordCounter struct {
	failure error
}

func (counter wordCounter) Name() string {
	return "word-count"
}

func (counter wordCounter) CountString(input string) (int, error) {
	if counter.failure != nil {
		return 0, counter.failure
	}
	return len(strings.Fields(input)), nil
}

func TestCountText(testingHandle *testing.T) {
	tokens, counted, countError := tokenizer.CountText(wordCounter{}, "three short words")
	if countError != nil {
		testingHandle.Fatalf("count: %v", countError)
	}
	if !counted || tokens != 3 {
		testingHandle.Fatalf("counted=%v tokens=%d, want counted=true tokens=3", counted, tokens)
	}
}

func TestCountTextSkipsInvalidUTF8(testingHandle *testing.T) {
	tokens, counted, countError := tokenizer.CountText(wordCounter{}, string([]byte{0xff, 0xfe}))
	if countError != nil {
		testingHandle.Fatalf("invalid input must not error: %v", countError)
	}
	if counted || tokens != 0 {
		testingHandle.Fatalf("invalid input must be reported uncounted, got counted=%v tokens=%d", counted, tokens)
	}
}

func TestCountTextPropagatesCounterErrors(testingHandle *testing.T) {
	countFailure := errors.New("encoder unavailable")
	if _, _, countError := tokenizer.CountText(wordCounter{failure: countFailure}, "text"); !errors.Is(countError, countFailure) {
		testingHandle.Fatalf("expected counter failure, got %v", countError)
	}
}

func TestCountTextRejectsNilCounter(testingHandle *testing.T) {
	if _, _, countError := tokenizer.CountText(nil, "text"); countError == nil {
		testingHandle.Fatalf("nil counter must be rejected")
	}
}
