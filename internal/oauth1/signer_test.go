package oauth1

import (
	"net/url"
	"strings"
	"testing"
)

func testSigner() Signer {
	return Signer{
		ConsumerKey:    "consumer-key",
		ConsumerSecret: "consumer-secret",
		AccessToken:    "access-token",
		AccessSecret:   "access-secret",
	}
}

func TestSignProducesWellFormedHeader(t *testing.T) {
	s := testSigner()
	form := url.Values{"track": []string{"cat,dog"}}

	signed, err := s.Sign("POST", "https://stream.example.com/1.1/statuses/filter.json", form)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(signed.AuthorizationHeader, "OAuth ") {
		t.Fatalf("expected header to start with %q, got %q", "OAuth ", signed.AuthorizationHeader)
	}
	for _, want := range []string{"oauth_consumer_key=", "oauth_nonce=", "oauth_signature=", "oauth_signature_method=\"HMAC-SHA1\"", "oauth_timestamp=", "oauth_token=", "oauth_version=\"1.0\""} {
		if !strings.Contains(signed.AuthorizationHeader, want) {
			t.Fatalf("expected header to contain %q, got %q", want, signed.AuthorizationHeader)
		}
	}
	if signed.Body != form.Encode() {
		t.Fatalf("expected body to equal url-encoded form, got %q", signed.Body)
	}
}

func TestSignIsDeterministicGivenFixedInputs(t *testing.T) {
	s := testSigner()
	form := url.Values{"track": []string{"cat"}}

	// The signature only depends on the nonce/timestamp beyond the inputs, so
	// instead of asserting a fixed signature we assert the base-string
	// construction is stable: signing the same params twice through the
	// unexported signature() helper with a frozen nonce/timestamp agrees.
	oauthParams := map[string]string{
		"oauth_consumer_key":     s.ConsumerKey,
		"oauth_nonce":            "fixed-nonce",
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        "1700000000",
		"oauth_token":            s.AccessToken,
		"oauth_version":          "1.0",
	}

	sig1 := s.signature("POST", "https://stream.example.com/1.1/statuses/filter.json", form, oauthParams)
	sig2 := s.signature("POST", "https://stream.example.com/1.1/statuses/filter.json", form, oauthParams)
	if sig1 != sig2 {
		t.Fatalf("expected identical signatures for identical inputs, got %q and %q", sig1, sig2)
	}
}

func TestSignChangesWithDifferentBody(t *testing.T) {
	s := testSigner()
	oauthParams := map[string]string{
		"oauth_consumer_key":     s.ConsumerKey,
		"oauth_nonce":            "fixed-nonce",
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        "1700000000",
		"oauth_token":            s.AccessToken,
		"oauth_version":          "1.0",
	}

	sigCat := s.signature("POST", "https://stream.example.com/1.1/statuses/filter.json", url.Values{"track": []string{"cat"}}, oauthParams)
	sigDog := s.signature("POST", "https://stream.example.com/1.1/statuses/filter.json", url.Values{"track": []string{"dog"}}, oauthParams)
	if sigCat == sigDog {
		t.Fatal("expected different signatures for different signed bodies")
	}
}

func TestEncodeEscapesReservedCharacters(t *testing.T) {
	got := encode("a b+c,d")
	want := "a%20b%2Bc%2Cd"
	if got != want {
		t.Fatalf("encode(%q) = %q, want %q", "a b+c,d", got, want)
	}
}
