package ai

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"relation-mapper/internal/inference"
)

func newTestServer(handler http.HandlerFunc) (*httptest.Server, *AlibabaClient) {
	srv := httptest.NewServer(handler)
	client := NewAlibabaClient("test-key")
	client.endpoint = srv.URL
	return srv, client
}

func respondWith(w http.ResponseWriter, content string) {
	fmt.Fprintf(w, `{"output":{"choices":[{"message":{"content":%q}}]}}`, content)
}

func TestClassifyParsesLabel(t *testing.T) {
	tests := []struct {
		content  string
		expected inference.Confidence
	}{
		{"very strong", inference.VeryStrong},
		{"strong", inference.Strong},
		{"normal", inference.Normal},
		{"weak", inference.Weak},
		{"very weak", inference.VeryWeak},
		// 模型啰嗦时仍要提取出标签
		{"评估结果：strong，命名高度吻合", inference.Strong},
		{"这个关系 very weak，基本无关", inference.VeryWeak},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
				respondWith(w, tt.content)
			})
			defer srv.Close()

			level, err := client.Classify("orders", "customer_id", "customers", "id")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if level != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, level)
			}
		})
	}
}

func TestClassifySendsAuthAndPrompt(t *testing.T) {
	var gotAuth string
	srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		respondWith(w, "normal")
	})
	defer srv.Close()

	if _, err := client.Classify("orders", "customer_id", "customers", "id"); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
}

func TestClassifyRetriesServerError(t *testing.T) {
	calls := 0
	srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		respondWith(w, "strong")
	})
	defer srv.Close()

	level, err := client.Classify("orders", "customer_id", "customers", "id")
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if level != inference.Strong {
		t.Errorf("expected strong, got %s", level)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestClassifyClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer srv.Close()

	_, err := client.Classify("orders", "customer_id", "customers", "id")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("4xx must not be retried, got %d calls", calls)
	}

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if perr.Status != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", perr.Status)
	}
}

func TestClassifyUnparsableContent(t *testing.T) {
	srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		respondWith(w, "无法判断")
	})
	defer srv.Close()

	_, err := client.Classify("orders", "customer_id", "customers", "id")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError for unparsable label, got %v", err)
	}
}

func TestClassifyEmptyChoices(t *testing.T) {
	calls := 0
	srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"output":{"choices":[]}}`)
	})
	defer srv.Close()

	_, err := client.Classify("orders", "customer_id", "customers", "id")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("malformed response must not be retried, got %d calls", calls)
	}
}

func TestExtractLabel(t *testing.T) {
	tests := []struct {
		content  string
		expected string
	}{
		// "very strong" 必须在 "strong" 之前命中
		{"very strong", "very strong"},
		{"very weak", "very weak"},
		{"STRONG", "strong"},
		{"  normal\n", "normal"},
	}

	for _, tt := range tests {
		if got := extractLabel(tt.content); got != tt.expected {
			t.Errorf("extractLabel(%q) = %q, expected %q", tt.content, got, tt.expected)
		}
	}
}
