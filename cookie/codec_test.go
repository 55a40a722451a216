package cookie

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

func fixedCodec(secret string, now *time.Time) *Codec {
	return NewCodec(func(context.Context) ([]byte, error) {
		return []byte(secret), nil
	}, func() time.Time { return *now })
}

func TestIssueDecodeRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := fixedCodec("s3cret", &now)
	ctx := context.Background()

	value, issued, err := c.Issue(ctx, "42", time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if issued.Nonce == "" {
		t.Fatal("expected nonce")
	}
	if issued.ExpiresAt-issued.IssuedAt != 3600 {
		t.Fatalf("expected one hour lifetime, got %d", issued.ExpiresAt-issued.IssuedAt)
	}

	got, err := c.Decode(ctx, value)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != issued {
		t.Fatalf("expected %+v, got %+v", issued, got)
	}
}

func TestIssueUsesFreshNonce(t *testing.T) {
	now := time.Now()
	c := fixedCodec("s", &now)
	_, a, _ := c.Issue(context.Background(), "1", time.Hour)
	_, b, _ := c.Issue(context.Background(), "1", time.Hour)
	if a.Nonce == b.Nonce {
		t.Fatal("expected distinct nonces")
	}
}

func TestDecodeExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := fixedCodec("s", &now)
	ctx := context.Background()

	value, _, err := c.Issue(ctx, "1", time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	now = now.Add(time.Minute)
	if _, err := c.Decode(ctx, value); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired at expires_at, got %v", err)
	}
}

func TestDecodeSignatureMismatchAfterSecretRotation(t *testing.T) {
	now := time.Now()
	ctx := context.Background()
	value, _, _ := fixedCodec("old", &now).Issue(ctx, "1", time.Hour)

	if _, err := fixedCodec("new", &now).Decode(ctx, value); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
}

func TestDecodeTamperedUser(t *testing.T) {
	now := time.Now()
	c := fixedCodec("s", &now)
	ctx := context.Background()
	value, _, _ := c.Issue(ctx, "1", time.Hour)

	raw, _ := url.QueryUnescape(value)
	tampered := strings.Replace(raw, `"user_id":"1"`, `"user_id":"2"`, 1)

	if _, err := c.Decode(ctx, url.QueryEscape(tampered)); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	now := time.Now()
	c := fixedCodec("s", &now)
	for _, v := range []string{"", "%zz", "garbage", url.QueryEscape(`{"payload":{}}`)} {
		if _, err := c.Decode(context.Background(), v); !errors.Is(err, ErrMalformed) {
			t.Fatalf("value %q: expected ErrMalformed, got %v", v, err)
		}
	}
}

func TestCookieAttributes(t *testing.T) {
	c := New(DefaultName, "v", ".example.com", time.Unix(1_800_000_000, 0))
	if !c.Secure || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Fatalf("unexpected attributes: %+v", c)
	}

	del := Expired(DefaultName, ".example.com")
	if del.MaxAge >= 0 || del.Value != "" {
		t.Fatalf("expected deleting cookie, got %+v", del)
	}
}

func TestValueSurvivesHTTPRoundTrip(t *testing.T) {
	now := time.Now()
	c := fixedCodec("s", &now)
	ctx := context.Background()
	value, _, _ := c.Issue(ctx, "7", time.Hour)

	req, _ := http.NewRequest(http.MethodGet, "https://a.example.com/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultName, Value: value})

	got, err := req.Cookie(DefaultName)
	if err != nil {
		t.Fatalf("cookie not found: %v", err)
	}
	if _, err := c.Decode(ctx, got.Value); err != nil {
		t.Fatalf("Decode after HTTP round trip failed: %v", err)
	}
}
