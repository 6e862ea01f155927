package ports

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPAnnotationSink_SuccessfulPost(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewHTTPAnnotationSink(srv.URL, "secret-token", time.Second)
	err := sink.Emit(context.Background(), Annotation{
		TimeMillis: 1000,
		Tags:       []string{"bandit", "experiment-concluded"},
		Text:       "experiment exp-1 concluded",
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("want bearer auth header, got %q", gotAuth)
	}
	if gotBody == "" {
		t.Fatalf("expected a non-empty request body")
	}
}

func TestHTTPAnnotationSink_NonTwoXX_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPAnnotationSink(srv.URL, "", time.Second)
	if err := sink.Emit(context.Background(), Annotation{Text: "x"}); err == nil {
		t.Fatalf("expected error on 500 response")
	}
}

func TestBuildAnnotationSink_EmptyURLFallsBackToLogging(t *testing.T) {
	sink := BuildAnnotationSink("", "", time.Second)
	if _, ok := sink.(*LoggingAnnotationSink); !ok {
		t.Fatalf("want LoggingAnnotationSink fallback, got %T", sink)
	}
}

func TestLoggingAnnotationSink_NeverErrors(t *testing.T) {
	sink := NewLoggingAnnotationSink()
	if err := sink.Emit(context.Background(), Annotation{Text: "hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
