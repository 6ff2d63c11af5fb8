package fetcher

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/h2non/gock"

	"bamwatch/internal/storage"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestClient(t *testing.T) (*Client, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	c := New(Config{
		BaseURL:       "https://www.example.com",
		Zipcode:       "30135",
		RadiusMiles:   250,
		RetryAttempts: 1,
		MinRequestGap: time.Millisecond,
	}, store, testLog)
	gock.InterceptClient(c.HTTPClient())
	t.Cleanup(gock.Off)
	return c, store
}

func TestFetchBullseye(t *testing.T) {
	c, _ := newTestClient(t)

	gock.New("https://www.example.com").
		Get("/bullseye").
		MatchParam("action", "bullseye").
		MatchParam("pid", "F123").
		MatchParam("PostalCode", "30135").
		MatchParam("Radius", "250").
		MatchHeader("X-Requested-With", "XMLHttpRequest").
		Reply(200).
		BodyString(`{"pidinfo":{"title":"x"}}`)

	body, err := c.FetchBullseye(context.Background(), "F123")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != `{"pidinfo":{"title":"x"}}` {
		t.Errorf("unexpected body %q", body)
	}
	if !gock.IsDone() {
		t.Error("expected the mocked request to be consumed")
	}
}

func TestFetchSearchPage(t *testing.T) {
	c, _ := newTestClient(t)

	gock.New("https://www.example.com").
		Get("/search").
		Reply(200).
		BodyString("<html>results</html>")

	body, err := c.FetchSearchPage(context.Background(), "/search?q=pokemon")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "<html>results</html>" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestChallengeRefreshesCookiesAndRetries(t *testing.T) {
	c, store := newTestClient(t)

	gock.New("https://www.example.com").
		Get("/bullseye").
		Reply(403).
		BodyString("checking your browser")
	gock.New("https://www.example.com").
		Get("/").
		Reply(200).
		SetHeader("Set-Cookie", "cf_clearance=tok; Path=/").
		BodyString("<html>landing</html>")
	gock.New("https://www.example.com").
		Get("/bullseye").
		Reply(200).
		BodyString(`{"pidinfo":{"title":"x"}}`)

	body, err := c.FetchBullseye(context.Background(), "F123")
	if err != nil {
		t.Fatalf("fetch after challenge: %v", err)
	}
	if string(body) != `{"pidinfo":{"title":"x"}}` {
		t.Errorf("unexpected body %q", body)
	}

	cookies, err := store.LoadCookies(context.Background(), "www.example.com", time.Hour)
	if err != nil {
		t.Fatalf("load cookies: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"cf_clearance": "tok"}, cookies); diff != "" {
		t.Errorf("persisted cookies mismatch (-want +got):\n%s", diff)
	}
}

func TestServerErrorExhaustsRetries(t *testing.T) {
	c, _ := newTestClient(t)

	gock.New("https://www.example.com").
		Get("/bullseye").
		Times(2).
		Reply(500)

	if _, err := c.FetchBullseye(context.Background(), "F123"); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
}

func TestRestoreCookies(t *testing.T) {
	c, store := newTestClient(t)
	ctx := context.Background()

	cookies := map[string]string{"cf_clearance": "restored"}
	if err := store.SaveCookies(ctx, "www.example.com", cookies, time.Now()); err != nil {
		t.Fatalf("save cookies: %v", err)
	}
	c.RestoreCookies(ctx)

	gock.New("https://www.example.com").
		Get("/search").
		MatchHeader("Cookie", "cf_clearance=restored").
		Reply(200).
		BodyString("ok")

	if _, err := c.FetchSearchPage(ctx, "/search"); err != nil {
		t.Fatalf("fetch with restored cookies: %v", err)
	}
	if !gock.IsDone() {
		t.Error("request did not carry the restored cookie")
	}
}
