package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// go test -v --run TestGetUpdates
func TestGetUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/getUpdates" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.FormValue("offset") != "101" || r.FormValue("timeout") != "1" || r.FormValue("allowed_updates") != `["message"]` {
			t.Errorf("unexpected form: %v", r.Form)
		}
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":101,"message":{"message_id":1,"from":{"id":9,"username":"alice"},"chat":{"id":-100,"type":"group","title":"Spark"},"date":1,"text":"/start"}},
			{"update_id":102}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "TOKEN", 5*time.Second)
	updates, err := client.GetUpdates(context.Background(), 101, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	first := updates[0]
	if first.UpdateID != 101 || first.Message == nil || first.Message.Chat.ID != -100 || first.Message.Text != "/start" {
		t.Errorf("unexpected first update: %+v", first)
	}
	if first.Message.Chat.Title != "Spark" || first.Message.From == nil || first.Message.From.Username != "alice" {
		t.Errorf("unexpected chat or sender: %+v", first.Message)
	}
	if updates[1].Message != nil {
		t.Errorf("expected no message on second update")
	}
}

// go test -v --run TestSendMessage
func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.FormValue("chat_id") != "7" || r.FormValue("text") != "hi" || r.FormValue("parse_mode") != ParseModeHTML {
			t.Errorf("unexpected form: %v", r.Form)
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":5}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "TOKEN", 5*time.Second)
	if err := client.SendMessage(context.Background(), 7, "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// go test -v --run TestSendMessageErrors
func TestSendMessageErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		permanent bool
		target    error
	}{
		{"blocked", 403, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`, true, ErrForbidden},
		{"kicked", 403, `{"ok":false,"error_code":403,"description":"Forbidden: bot was kicked from the group chat"}`, true, ErrForbidden},
		{"not found", 400, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, true, ErrChatNotFound},
		{"migrated", 400, `{"ok":false,"error_code":400,"description":"Bad Request: group chat was upgraded to a supergroup chat","parameters":{"migrate_to_chat_id":-1001234}}`, false, ErrChatMigrated},
		{"bad html", 400, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`, false, nil},
		{"flood", 429, `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`, false, nil},
		{"gateway", 502, `<html>bad gateway</html>`, false, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, "TOKEN", 5*time.Second)
			err := client.SendMessage(context.Background(), 1, "x")
			if err == nil {
				t.Fatal("expected error")
			}
			if IsPermanent(err) != tc.permanent {
				t.Errorf("IsPermanent = %v, want %v (err: %v)", IsPermanent(err), tc.permanent, err)
			}
			if tc.target != nil && !errors.Is(err, tc.target) {
				t.Errorf("expected %v, got %v", tc.target, err)
			}
		})
	}
}

// go test -v --run TestErrorParameters
func TestErrorParameters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("chat_id") == "1" {
			w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`))
			return
		}
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: group chat was upgraded to a supergroup chat","parameters":{"migrate_to_chat_id":-1001234}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "TOKEN", time.Second)

	err := client.SendMessage(context.Background(), 1, "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.RetryAfter != 3 || apiErr.Method != "sendMessage" {
		t.Fatalf("expected APIError with retry_after 3, got %v", err)
	}
	if _, ok := MigratedTo(err); ok {
		t.Errorf("flood error reported as migration")
	}

	err = client.SendMessage(context.Background(), -55, "x")
	newID, ok := MigratedTo(err)
	if !ok || newID != -1001234 {
		t.Fatalf("expected migration to -1001234, got %d %v (%v)", newID, ok, err)
	}
}

// go test -v --run TestSendVideoReusesFileID
func TestSendVideoReusesFileID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spark.mp4")
	if err := os.WriteFile(path, []byte("fake-video"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}

	var (
		mu         sync.Mutex
		uploads    int
		reused     []string
		rejectNext bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendVideo" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		mu.Lock()
		defer mu.Unlock()

		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if r.FormValue("caption") != "<b>buy</b>" || r.FormValue("parse_mode") != ParseModeHTML ||
				r.FormValue("duration") != "10" || r.FormValue("supports_streaming") != "true" {
				t.Errorf("unexpected form: %v", r.MultipartForm.Value)
			}
			file, header, err := r.FormFile("video")
			if err != nil {
				t.Errorf("form file: %v", err)
			} else {
				data, _ := io.ReadAll(file)
				if header.Filename != "spark.mp4" || string(data) != "fake-video" {
					t.Errorf("unexpected upload %s: %q", header.Filename, data)
				}
			}
			uploads++
			w.Write([]byte(`{"ok":true,"result":{"message_id":1,"video":{"file_id":"vid-1","file_unique_id":"u1","width":1920,"height":1080,"duration":10}}}`))
			return
		}

		reused = append(reused, r.FormValue("chat_id")+":"+r.FormValue("video"))
		if rejectNext {
			rejectNext = false
			w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: wrong file identifier/HTTP URL specified"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":2}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "TOKEN", 5*time.Second)
	video := Video{Path: path, Duration: 10}
	ctx := context.Background()

	for _, chatID := range []int64{-42, -43, -44} {
		if err := client.SendVideo(ctx, chatID, video, "<b>buy</b>"); err != nil {
			t.Fatalf("send to %d: %v", chatID, err)
		}
	}
	mu.Lock()
	if uploads != 1 {
		t.Fatalf("expected a single upload, got %d", uploads)
	}
	if len(reused) != 2 || reused[0] != "-43:vid-1" || reused[1] != "-44:vid-1" {
		t.Fatalf("expected file_id reuse, got %v", reused)
	}

	// a rejected file_id falls back to uploading again
	rejectNext = true
	mu.Unlock()
	if err := client.SendVideo(ctx, -45, video, "<b>buy</b>"); err == nil {
		t.Fatal("expected rejected file_id error")
	}
	if err := client.SendVideo(ctx, -45, video, "<b>buy</b>"); err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if uploads != 2 {
		t.Errorf("expected a second upload after rejection, got %d", uploads)
	}
}

// go test -v --run TestSendVideoConcurrentUploadsOnce
func TestSendVideoConcurrentUploadsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spark.mp4")
	if err := os.WriteFile(path, []byte("fake-video"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}

	var mu sync.Mutex
	uploads := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			mu.Lock()
			uploads++
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			w.Write([]byte(`{"ok":true,"result":{"message_id":1,"video":{"file_id":"vid-1","file_unique_id":"u1","width":1,"height":1,"duration":1}}}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":2}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "TOKEN", 5*time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(chatID int64) {
			defer wg.Done()
			if err := client.SendVideo(context.Background(), chatID, Video{Path: path}, "x"); err != nil {
				t.Errorf("send to %d: %v", chatID, err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if uploads != 1 {
		t.Errorf("expected 1 upload across concurrent sends, got %d", uploads)
	}
}

// go test -v --run TestContextCancel
func TestContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := NewClient(srv.URL, "TOKEN", 5*time.Second).SendMessage(ctx, 1, "x")
	if err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("request ignored context deadline")
	}
	if IsPermanent(err) {
		t.Errorf("timeouts must be transient")
	}
}

// go test -v --run TestTransportErrorRedactsToken
func TestTransportErrorRedactsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewClient(url, "SECRET123", time.Second).SendMessage(context.Background(), 1, "x")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), "SECRET123") {
		t.Errorf("token leaked in error: %v", err)
	}
	if IsPermanent(err) {
		t.Errorf("transport errors must be transient")
	}
}
