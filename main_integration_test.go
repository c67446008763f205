package main

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/recipe-finder/internal/handlers"
	"github.com/example/recipe-finder/internal/recipes"
	"github.com/example/recipe-finder/internal/session"
)

type gatedGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedGenerator) Generate(ctx context.Context, requestID string, upload *recipes.Upload) (*recipes.Result, error) {
	close(g.started)
	<-g.release
	return &recipes.Result{
		Ingredients: []string{"Tomato"},
		Recipes:     []recipes.Recipe{{Title: "Tomato Soup", Steps: []string{"Chop", "Simmer"}}},
	}, nil
}

func TestServerGracefulShutdownFinishesInFlightUpload(t *testing.T) {
	logger := zap.NewNop()
	gin.SetMode(gin.TestMode)

	gen := &gatedGenerator{started: make(chan struct{}), release: make(chan struct{})}
	defer func() {
		select {
		case <-gen.release:
		default:
			close(gen.release)
		}
	}()

	tokens, err := session.NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("failed to create tokens: %v", err)
	}
	registry := session.NewRegistry(gen, nil, time.Hour, logger)
	router := gin.New()
	handlers.RegisterRoutes(router, registry, session.Middleware(tokens, false), handlers.Options{Logger: logger})

	t.Log("creating listener")
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: router}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, logger, listener, signalCh)
	}()

	addr := listener.Addr().String()
	t.Logf("listening on %s", addr)
	waitForServer(t, addr)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "tomato.jpg")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	_, _ = part.Write([]byte("jpeg-bytes"))
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	client := &http.Client{Timeout: 2 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		t.Log("sending upload")
		resp, err := client.Post("http://"+addr+"/upload", writer.FormDataContentType(), body)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-gen.started:
		t.Log("upload reached the recipe service")
	case <-time.After(2 * time.Second):
		t.Fatal("upload did not start in time")
	}

	t.Log("sending signal")
	signalCh <- syscall.SIGTERM

	time.Sleep(50 * time.Millisecond)
	close(gen.release)
	t.Log("released upload")

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		page, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(page))
		}
		if !strings.Contains(string(page), "Tomato Soup") {
			t.Fatalf("expected rendered recipe, got: %s", string(page))
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
		t.Log("server shutdown complete")
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
