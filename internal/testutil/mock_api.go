package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
)

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI serves a Backend over HTTP with the routes of the remote service.
// Address listings use the {meta, results} envelope; device listings
// alternate between bare arrays and {results} by category.
type MockAPI struct {
	server   *httptest.Server
	backend  *Backend
	token    string
	mux      *http.ServeMux
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockAPI starts a server backed by backend. A non-empty token is
// required as bearer token on every request.
func NewMockAPI(backend *Backend, token string) *MockAPI {
	m := &MockAPI{
		backend:  backend,
		token:    token,
		mux:      http.NewServeMux(),
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}
	m.routes()

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.RequestCount++
		m.LastRequestHeader = r.Header.Clone()
		m.mu.Unlock()

		if m.token != "" && r.Header.Get("Authorization") != "Bearer "+m.token {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		m.mu.RLock()
		handler, exists := m.handlers[r.URL.Path]
		m.mu.RUnlock()
		if exists {
			handler(w, r)
			return
		}

		m.mux.ServeHTTP(w, r)
	}))

	return m
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastRequestHeader returns the headers of the latest request.
func (m *MockAPI) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// SetHandler overrides the handler of an exact path.
func (m *MockAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for an exact path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			io.WriteString(w, resp.Body)
		}
	})
}

var categoryRoutes = map[string]model.Category{
	"vehicles":         model.CategoryVehicle,
	"solar-inverters":  model.CategorySolarInverter,
	"batteries":        model.CategoryBattery,
	"hvacs":            model.CategoryHVAC,
	"chargers":         model.CategoryCharger,
	"smart-meters":     model.CategorySmartMeter,
	"grid-connections": model.CategoryGridConnection,
}

func (m *MockAPI) routes() {
	m.mux.HandleFunc("GET /groups", func(w http.ResponseWriter, r *http.Request) {
		groups, _ := m.backend.ListGroups(r.Context())
		writeJSON(w, http.StatusOK, groups)
	})

	m.mux.HandleFunc("GET /groups/{group}/addresses", func(w http.ResponseWriter, r *http.Request) {
		var opts model.ListOptions
		if v := r.URL.Query().Get("offset"); v != "" {
			n, _ := strconv.Atoi(v)
			opts.Offset = &n
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			n, _ := strconv.Atoi(v)
			opts.Limit = &n
		}
		opts.SearchText = r.URL.Query().Get("search")

		page, err := m.backend.ListParents(r.Context(), r.PathValue("group"), opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"meta":    map[string]int{"total": page.Total},
			"results": page.Items,
		})
	})

	m.mux.HandleFunc("GET /addresses/{address}/{category}", func(w http.ResponseWriter, r *http.Request) {
		c, ok := categoryRoutes[r.PathValue("category")]
		if !ok {
			writeError(w, http.StatusNotFound, "unknown device category")
			return
		}
		fetch, _ := model.Dispatch(m.backend, c)
		records, err := fetch(r.Context(), r.PathValue("address"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if records == nil {
			records = []model.ChildRecord{}
		}
		if c == model.CategorySolarInverter || c == model.CategoryHVAC || c == model.CategorySmartMeter {
			writeJSON(w, http.StatusOK, map[string]any{"results": records})
			return
		}
		writeJSON(w, http.StatusOK, records)
	})

	m.mux.HandleFunc("POST /addresses/{address}/solar-inverters/{device}/schedules", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		err := m.backend.CreateSchedule(r.Context(), r.PathValue("address"), r.PathValue("device"), model.ScheduleSpec(body))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
	})

	m.mux.HandleFunc("GET /sparkies/{serial}", func(w http.ResponseWriter, r *http.Request) {
		doc, err := m.backend.SparkyDetails(r.Context(), r.PathValue("serial"))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(doc)
	})

	m.mux.HandleFunc("GET /sparkies/{serial}/electricity/latest-p1", func(w http.ResponseWriter, r *http.Request) {
		if err := m.backend.CheckReporting(r.Context(), r.PathValue("serial")); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{"power": 1.5})
	})

	m.mux.HandleFunc("GET /groups/{group}/energy/latest", func(w http.ResponseWriter, r *http.Request) {
		t, err := m.backend.GetLatestTelemetry(r.Context(), r.PathValue("group"))
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, t)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfter),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse(message string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "` + message + `"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
