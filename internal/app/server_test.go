package app

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/hitoshi/techshop/internal/metrics"
)

// ストリーミング中の接続があってもShutdownはすぐに戻る。
func TestNewHTTPServer_ShutdownEndsOpenStreams(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	finished := make(chan struct{})
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(finished)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("Flush() error = %v", err)
		}
		close(started)
		<-r.Context().Done()
	})

	srv := newHTTPServer("", h)
	go srv.Serve(ln)

	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/events")
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	begin := time.Now()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v, want nil", err)
	}
	if elapsed := time.Since(begin); elapsed >= time.Second {
		t.Errorf("Shutdown() took %v", elapsed)
	}

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Error("handler still running after Shutdown")
	}
}

func TestWorkerCollector_RecordsNothing(t *testing.T) {
	if _, ok := workerCollector().(metrics.Nop); !ok {
		t.Errorf("workerCollector() = %T, want metrics.Nop", workerCollector())
	}
}
