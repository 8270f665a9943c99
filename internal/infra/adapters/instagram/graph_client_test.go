package instagram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(serverURL string) *GraphClient {
	c := NewGraphClient(serverURL, "v21.0")
	c.pollInterval = time.Millisecond
	return c
}

func TestGraphClient_CreateContainer(t *testing.T) {
	t.Run("Success - returns container id and sends form fields", func(t *testing.T) {
		var gotPath, gotCaption, gotImageURL, gotToken string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			gotCaption = r.PostFormValue("caption")
			gotImageURL = r.PostFormValue("image_url")
			gotToken = r.PostFormValue("access_token")
			fmt.Fprint(w, `{"id":"container-1"}`)
		}))
		defer srv.Close()

		id, err := newTestClient(srv.URL).CreateContainer(context.Background(), "tok", "ig-user", "https://cdn/img.png", "hello")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "container-1" {
			t.Errorf("expected container-1, got %q", id)
		}
		if gotPath != "/v21.0/ig-user/media" {
			t.Errorf("unexpected path %q", gotPath)
		}
		if gotCaption != "hello" || gotImageURL != "https://cdn/img.png" || gotToken != "tok" {
			t.Errorf("form fields not forwarded: caption=%q image_url=%q token=%q", gotCaption, gotImageURL, gotToken)
		}
	})

	t.Run("Failure - surfaces api error envelope", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"Invalid image","code":9004}}`)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).CreateContainer(context.Background(), "tok", "ig-user", "https://cdn/img.png", "")
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "Invalid image") || !strings.Contains(err.Error(), "9004") {
			t.Errorf("error should carry message and code, got %v", err)
		}
	})

	t.Run("Edge - caption is truncated to the ceiling", func(t *testing.T) {
		var gotLen int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			gotLen = len([]rune(r.PostFormValue("caption")))
			fmt.Fprint(w, `{"id":"c"}`)
		}))
		defer srv.Close()

		long := strings.Repeat("x", MaxCaptionLen+50)
		if _, err := newTestClient(srv.URL).CreateContainer(context.Background(), "tok", "u", "https://cdn/i.png", long); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotLen != MaxCaptionLen {
			t.Errorf("expected caption of %d runes, got %d", MaxCaptionLen, gotLen)
		}
	})
}

func TestGraphClient_WaitUntilFinished(t *testing.T) {
	statusServer := func(codes ...string) *httptest.Server {
		var call int
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("fields"); got != "status_code,status" {
				t.Errorf("unexpected fields param %q", got)
			}
			code := codes[call]
			if call < len(codes)-1 {
				call++
			}
			fmt.Fprintf(w, `{"status_code":%q,"status":"detail"}`, code)
		}))
	}

	t.Run("Success - finishes after in-progress polls", func(t *testing.T) {
		srv := statusServer("IN_PROGRESS", "IN_PROGRESS", "FINISHED")
		defer srv.Close()

		if err := newTestClient(srv.URL).WaitUntilFinished(context.Background(), "tok", "c1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("Failure - ERROR status is terminal with detail", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status_code":"ERROR","status":"media download failed"}`)
		}))
		defer srv.Close()

		err := newTestClient(srv.URL).WaitUntilFinished(context.Background(), "tok", "c1")
		if err == nil || !strings.Contains(err.Error(), "media download failed") {
			t.Errorf("expected terminal error with detail, got %v", err)
		}
	})

	t.Run("Failure - EXPIRED and PUBLISHED are terminal sentinels", func(t *testing.T) {
		for code, want := range map[string]error{
			"EXPIRED":   ErrContainerExpired,
			"PUBLISHED": ErrContainerPublished,
		} {
			srv := statusServer(code)
			err := newTestClient(srv.URL).WaitUntilFinished(context.Background(), "tok", "c1")
			srv.Close()
			if !errors.Is(err, want) {
				t.Errorf("status %s: expected %v, got %v", code, want, err)
			}
		}
	})

	t.Run("Failure - unknown status is terminal", func(t *testing.T) {
		srv := statusServer("SOMETHING_NEW")
		defer srv.Close()

		err := newTestClient(srv.URL).WaitUntilFinished(context.Background(), "tok", "c1")
		if err == nil || !strings.Contains(err.Error(), "SOMETHING_NEW") {
			t.Errorf("expected unknown-status error, got %v", err)
		}
	})

	t.Run("Edge - gives up after the poll bound", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			fmt.Fprint(w, `{"status_code":"IN_PROGRESS"}`)
		}))
		defer srv.Close()

		err := newTestClient(srv.URL).WaitUntilFinished(context.Background(), "tok", "c1")
		if !errors.Is(err, ErrContainerTimeout) {
			t.Fatalf("expected ErrContainerTimeout, got %v", err)
		}
		if calls != defaultPollAttempts {
			t.Errorf("expected %d polls, got %d", defaultPollAttempts, calls)
		}
	})

	t.Run("Edge - context cancellation interrupts the wait", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status_code":"IN_PROGRESS"}`)
		}))
		defer srv.Close()

		c := newTestClient(srv.URL)
		c.pollInterval = time.Minute
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		if err := c.WaitUntilFinished(ctx, "tok", "c1"); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestGraphClient_Publish(t *testing.T) {
	t.Run("Success - returns media id", func(t *testing.T) {
		var gotPath, gotCreationID string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			r.ParseForm()
			gotCreationID = r.PostFormValue("creation_id")
			fmt.Fprint(w, `{"id":"media-9"}`)
		}))
		defer srv.Close()

		id, err := newTestClient(srv.URL).Publish(context.Background(), "tok", "ig-user", "container-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "media-9" {
			t.Errorf("expected media-9, got %q", id)
		}
		if gotPath != "/v21.0/ig-user/media_publish" || gotCreationID != "container-1" {
			t.Errorf("unexpected request: path=%q creation_id=%q", gotPath, gotCreationID)
		}
	})

	t.Run("Failure - missing id in response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{}`)
		}))
		defer srv.Close()

		if _, err := newTestClient(srv.URL).Publish(context.Background(), "tok", "u", "c"); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestGraphClient_RefreshToken(t *testing.T) {
	t.Run("Success - unversioned endpoint, returns token and ttl", func(t *testing.T) {
		var gotPath, gotGrant string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotGrant = r.URL.Query().Get("grant_type")
			fmt.Fprint(w, `{"access_token":"new-tok","token_type":"bearer","expires_in":5184000}`)
		}))
		defer srv.Close()

		tok, ttl, err := newTestClient(srv.URL).RefreshToken(context.Background(), "old-tok")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok != "new-tok" || ttl != 5184000 {
			t.Errorf("unexpected result: token=%q ttl=%d", tok, ttl)
		}
		if gotPath != "/refresh_access_token" {
			t.Errorf("refresh must not be versioned, got path %q", gotPath)
		}
		if gotGrant != "ig_refresh_token" {
			t.Errorf("unexpected grant_type %q", gotGrant)
		}
	})

	t.Run("Failure - api error is wrapped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"Session has expired","code":190}}`)
		}))
		defer srv.Close()

		_, _, err := newTestClient(srv.URL).RefreshToken(context.Background(), "old-tok")
		if err == nil || !strings.Contains(err.Error(), "token refresh failed") {
			t.Errorf("expected wrapped refresh error, got %v", err)
		}
	})
}

func TestGraphClient_Permalink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fields") != "permalink" {
			t.Errorf("unexpected fields %q", r.URL.Query().Get("fields"))
		}
		fmt.Fprint(w, `{"permalink":"https://www.instagram.com/p/abc/"}`)
	}))
	defer srv.Close()

	link, err := newTestClient(srv.URL).Permalink(context.Background(), "tok", "media-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link != "https://www.instagram.com/p/abc/" {
		t.Errorf("unexpected permalink %q", link)
	}
}
