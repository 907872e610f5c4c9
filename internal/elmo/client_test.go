package elmo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

const (
	areasJSON = `[
		{"Index": 0, "Description": "Entryway", "Armed": true, "InUse": true},
		{"Index": 1, "Description": "Kitchen", "Armed": false, "InUse": true},
		{"Index": 2, "Description": "Garage", "Armed": true, "InUse": true},
		{"Index": 3, "Description": "Unused", "Armed": false, "InUse": false}
	]`
	inputsJSON = `[
		{"Index": 0, "Description": "Front door", "Alarm": true, "InUse": true},
		{"Index": 1, "Description": "Back door", "Alarm": false, "InUse": true},
		{"Index": 2, "Description": "Window", "Alarm": false, "InUse": true}
	]`
)

func newPanel(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("username") != "test" || q.Get("password") != "secret" || q.Get("domain") != "vendor" {
			http.Error(w, "Username or password invalid", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `{"SessionId": "00000000-0000-0000-0000-000000000000", "Redirect": false}`)
	})
	items := func(payload string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			if err := r.ParseForm(); err != nil || r.PostForm.Get("sessionId") == "" {
				http.Error(w, "missing session", http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, payload)
		}
	}
	mux.HandleFunc("/api/areas", items(areasJSON))
	mux.HandleFunc("/api/inputs", items(inputsJSON))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClientAuth(t *testing.T) {
	server := newPanel(t)

	t.Run("valid credentials", func(t *testing.T) {
		c := NewClient(server.URL+"/", "vendor", nil)
		if err := c.Auth(context.Background(), "test", "secret"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if c.sessionID == "" {
			t.Error("Expected a session to be stored")
		}
	})

	t.Run("invalid credentials", func(t *testing.T) {
		c := NewClient(server.URL, "vendor", nil)
		err := c.Auth(context.Background(), "test", "wrong")

		var httpErr *HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatalf("Expected HTTPError, got %v", err)
		}
		if httpErr.StatusCode != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", httpErr.StatusCode)
		}
		if !strings.Contains(err.Error(), "Username or password invalid") {
			t.Errorf("Expected upstream text in error, got %v", err)
		}
	})
}

func TestClientCheck(t *testing.T) {
	server := newPanel(t)

	t.Run("not authenticated", func(t *testing.T) {
		c := NewClient(server.URL, "vendor", nil)
		if _, err := c.Check(context.Background()); err == nil {
			t.Error("Expected error without a session")
		}
	})

	t.Run("buckets in upstream order", func(t *testing.T) {
		c := NewClient(server.URL, "vendor", nil)
		if err := c.Auth(context.Background(), "test", "secret"); err != nil {
			t.Fatal(err)
		}

		status, err := c.Check(context.Background())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		want := &Status{
			AreasArmed:    []Item{{Index: 0, Name: "Entryway"}, {Index: 2, Name: "Garage"}},
			AreasDisarmed: []Item{{Index: 1, Name: "Kitchen"}},
			InputsAlerted: []Item{{Index: 0, Name: "Front door"}},
			InputsWait:    []Item{{Index: 1, Name: "Back door"}, {Index: 2, Name: "Window"}},
		}
		if !reflect.DeepEqual(status, want) {
			t.Errorf("Expected %+v, got %+v", want, status)
		}
	})
}

func TestClientCheckServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"SessionId": "abc"}`)
	})
	mux.HandleFunc("/api/areas", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Server Error", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient(server.URL, "vendor", nil)
	if err := c.Auth(context.Background(), "u", "p"); err != nil {
		t.Fatal(err)
	}
	_, err := c.Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Server Error") {
		t.Errorf("Expected server error text, got %v", err)
	}
}
