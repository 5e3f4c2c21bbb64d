package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestCompleteSendsChatRequest(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody struct {
		Model    string        `json:"model"`
		Messages []ChatMessage `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Patient Status: stable."}}]}`)
	}))
	defer srv.Close()

	client := NewOpenAICompatibleClientWithHTTP(srv.Client())
	out, err := client.Complete(context.Background(), ChatConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-1", Model: "m"},
		[]ChatMessage{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "Patient Status: stable." {
		t.Errorf("content = %q", out)
	}
	if gotAuth != "Bearer sk-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody.Model != "m" || len(gotBody.Messages) != 1 {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantStatus    int
		wantMalformed bool
	}{
		{name: "server error", status: 500, body: `{"error":"boom"}`, wantStatus: 500},
		{name: "unauthorized", status: 401, body: `{"error":"bad key"}`, wantStatus: 401},
		{name: "no choices", status: 200, body: `{"choices":[]}`, wantMalformed: true},
		{name: "no message", status: 200, body: `{"choices":[{}]}`, wantMalformed: true},
		{name: "not json", status: 200, body: `<html>`, wantMalformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			client := NewOpenAICompatibleClientWithHTTP(srv.Client())
			_, err := client.Complete(context.Background(), ChatConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"}, nil)
			if err == nil {
				t.Fatal("expected error")
			}

			var statusErr *StatusError
			if tt.wantStatus != 0 {
				if !errors.As(err, &statusErr) || statusErr.StatusCode != tt.wantStatus {
					t.Errorf("error = %v, want status %d", err, tt.wantStatus)
				}
			}
			if errors.Is(err, ErrMalformedResponse) != tt.wantMalformed {
				t.Errorf("malformed = %v, want %v (err %v)", errors.Is(err, ErrMalformedResponse), tt.wantMalformed, err)
			}
		})
	}
}

func TestTranscribeFileUploadsMultipart(t *testing.T) {
	audioPath := filepath.Join(t.TempDir(), "memo.wav")
	if err := os.WriteFile(audioPath, []byte("RIFF...."), 0644); err != nil {
		t.Fatal(err)
	}

	var gotModel, gotLanguage, gotFilename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		if _, hdr, err := r.FormFile("file"); err == nil {
			gotFilename = hdr.Filename
		}
		_, _ = io.WriteString(w, `{"text":"client ate lunch"}`)
	}))
	defer srv.Close()

	client := NewOpenAICompatibleClientWithHTTP(srv.Client())
	text, err := client.TranscribeFile(context.Background(), ChatConfig{BaseURL: srv.URL, APIKey: "k", Model: "whisper-1"}, audioPath, "en")
	if err != nil {
		t.Fatalf("TranscribeFile() error = %v", err)
	}
	if text != "client ate lunch" {
		t.Errorf("text = %q", text)
	}
	if gotModel != "whisper-1" || gotLanguage != "en" || gotFilename != "memo.wav" {
		t.Errorf("form = model %q language %q file %q", gotModel, gotLanguage, gotFilename)
	}
}

func TestTranscribeFileMissingText(t *testing.T) {
	audioPath := filepath.Join(t.TempDir(), "memo.wav")
	if err := os.WriteFile(audioPath, []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"segments":[]}`)
	}))
	defer srv.Close()

	client := NewOpenAICompatibleClientWithHTTP(srv.Client())
	_, err := client.TranscribeFile(context.Background(), ChatConfig{BaseURL: srv.URL, Model: "whisper-1"}, audioPath, "")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}
