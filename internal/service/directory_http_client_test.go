package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestDirectoryClientGetTeacher(t *testing.T) {
	schoolID := uuid.New()
	teacherID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := fmt.Sprintf("/schools/%s/teachers/%s", schoolID, teacherID)
		if r.URL.Path != expected {
			t.Fatalf("unexpected path %s, want %s", r.URL.Path, expected)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"teacher":{"id":%q,"full_name":"T. Okello","active":true}}`, teacherID)
	}))
	defer server.Close()

	client := NewDirectoryHTTPClient(server.URL, server.Client())
	teacher, err := client.GetTeacher(context.Background(), schoolID, teacherID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if teacher.ID != teacherID || teacher.FullName != "T. Okello" || !teacher.Active {
		t.Fatalf("unexpected teacher: %+v", teacher)
	}
}

func TestDirectoryClientStatusMapping(t *testing.T) {
	cases := map[string]struct {
		status  int
		wantErr error
	}{
		"not found": {http.StatusNotFound, ErrTeacherNotFound},
		"forbidden": {http.StatusForbidden, ErrUnauthorized},
		"expired":   {http.StatusUnauthorized, ErrUnauthorized},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := NewDirectoryHTTPClient(server.URL, server.Client())
			_, err := client.GetTeacher(context.Background(), uuid.New(), uuid.New())
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDirectoryClientInactiveTeacher(t *testing.T) {
	teacherID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"teacher":{"id":%q,"full_name":"T. Okello","active":false}}`, teacherID)
	}))
	defer server.Close()

	client := NewDirectoryHTTPClient(server.URL, server.Client())
	_, err := client.GetTeacher(context.Background(), uuid.New(), teacherID)
	if !errors.Is(err, ErrTeacherNotFound) {
		t.Fatalf("inactive teacher must look absent, got %v", err)
	}
}

func TestDirectoryClientServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewDirectoryHTTPClient(server.URL, server.Client())
	_, err := client.GetTeacher(context.Background(), uuid.New(), uuid.New())
	if err == nil || errors.Is(err, ErrTeacherNotFound) || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("5xx must surface as an opaque error, got %v", err)
	}
}
