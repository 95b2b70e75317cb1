package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"
)

type scaleRequest struct {
	ServiceID string  `json:"serviceId"`
	Factor    float64 `json:"factor"`
}

type limitRequest struct {
	ServiceID         string `json:"serviceId"`
	RequestsPerMinute int    `json:"requestsPerMinute"`
}

// state remembers the last request per service so /v1/state can be polled
// while exercising the engine locally.
type state struct {
	mu     sync.Mutex
	scales map[string]float64
	limits map[string]int
}

func main() {
	st := &state{scales: map[string]float64{}, limits: map[string]int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/scale", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req scaleRequest
		if !decode(w, r, &req) {
			return
		}
		st.mu.Lock()
		st.scales[req.ServiceID] = req.Factor
		st.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/v1/limits", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req limitRequest
		if !decode(w, r, &req) {
			return
		}
		st.mu.Lock()
		st.limits[req.ServiceID] = req.RequestsPerMinute
		st.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/v1/state", func(w http.ResponseWriter, _ *http.Request) {
		st.mu.Lock()
		defer st.mu.Unlock()
		writeJSON(w, map[string]any{"scales": st.scales, "limits": st.limits})
	})

	logger := log.New(log.Writer(), "actuators-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:              ":8090",
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Println("listening on :8090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
