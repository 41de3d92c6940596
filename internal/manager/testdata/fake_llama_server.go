package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// A tiny stand-in for llama-server: answers /v1/models and streams a fixed
// reply word by word from /v1/chat/completions.
func main() {
	var model, host, port, mmproj string
	// Accept a subset of llama-server flags used by the pool
	flag.StringVar(&model, "m", "", "model path")
	flag.StringVar(&host, "host", "127.0.0.1", "host")
	flag.StringVar(&port, "port", "0", "port")
	flag.StringVar(&mmproj, "mmproj", "", "projector path")
	flag.String("c", "", "context")
	flag.String("ngl", "", "gpu layers")
	flag.String("t", "", "threads")
	flag.Parse()

	reply := os.Getenv("FAKE_LLAMA_REPLY")
	if reply == "" {
		reply = "Hello there\n\nExtra"
	}

	addr := fmt.Sprintf("%s:%s", host, port)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"test","object":"model"}]}`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl, _ := w.(http.Flusher)
		for _, part := range strings.SplitAfter(reply, " ") {
			chunk := map[string]any{
				"id":      "chatcmpl-fake",
				"object":  "chat.completion.chunk",
				"created": time.Now().Unix(),
				"model":   "test",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": part}}},
			}
			b, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", b)
			if fl != nil {
				fl.Flush()
			}
			select {
			case <-r.Context().Done():
				return
			default:
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Wait for SIGTERM then shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
