// Package adminfake is an in-memory stand-in for the proxy's /admin API,
// used by tests across the console packages.
package adminfake

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gemini-console/internal/models"

	"github.com/go-chi/chi/v5"
)

const (
	Token    = "test-token"
	Password = "admin-pass"
	// KeysCategory/KeysField locate the Gemini key list in the env schema.
	KeysCategory = "API与访问控制"
	KeysField    = "GEMINI_API_KEYS"
)

type CheckCall struct {
	Key   string
	Model string
	At    time.Time
}

type Server struct {
	mu sync.Mutex

	// Schema is the raw /admin/env document; GEMINI_API_KEYS is rewritten on update.
	Schema      string
	GeminiKeys  []string
	ValidKeys   map[string]bool
	Mappings    []models.APIMapping
	AccessKeys  []models.AccessKey
	Media       map[string][]models.MediaFile
	Storage     map[string]models.StorageDetails
	Updates     []map[string]string
	CheckCalls  []CheckCall
	Requests    []string
	FailUpdates bool

	httpServer *httptest.Server
}

func New() *Server {
	s := &Server{
		ValidKeys: map[string]bool{},
		Media:     map[string][]models.MediaFile{},
		Storage:   map[string]models.StorageDetails{},
	}
	s.httpServer = httptest.NewServer(s.routes())
	return s
}

func (s *Server) URL() string {
	return s.httpServer.URL
}

func (s *Server) Close() {
	s.httpServer.Close()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Use(s.auth)

	r.Get("/admin/env", s.env)
	r.Post("/admin/update", s.update)

	r.Get("/admin/api_mappings", s.listMappings)
	r.Post("/admin/api_mappings", s.createMapping)
	r.Put("/admin/api_mappings", s.updateMapping)
	r.Delete("/admin/api_mappings/{prefix}", s.deleteMapping)

	r.Get("/admin/keys", s.listAccessKeys)
	r.Post("/admin/keys", s.createAccessKey)
	r.Put("/admin/keys/{key}", s.updateAccessKey)
	r.Delete("/admin/keys/{key}", s.deleteAccessKey)

	r.Post("/admin/check_gemini_key", s.checkKey)
	r.Post("/admin/check_gemini_key_real", s.checkKey)

	r.Get("/admin/media", s.listMedia)
	r.Delete("/admin/media", s.deleteMedia)
	r.Get("/admin/storage_details", s.storageDetails)
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.Requests = append(s.Requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestCount counts recorded requests matching "METHOD /path".
func (s *Server) RequestCount(methodPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.Requests {
		if r == methodPath {
			n++
		}
	}
	return n
}

func (s *Server) Checks() []CheckCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CheckCall(nil), s.CheckCalls...)
}

func (s *Server) LastUpdate() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Updates) == 0 {
		return nil
	}
	return s.Updates[len(s.Updates)-1]
}

func (s *Server) env(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Schema != "" {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(s.Schema))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		KeysCategory: map[string]any{
			KeysField: map[string]any{
				"label": "Gemini API Keys",
				"type":  "text",
				"value": strings.Join(s.GeminiKeys, ","),
			},
		},
	})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Updates = append(s.Updates, body)
	if s.FailUpdates {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "write failed"})
		return
	}
	if body["password"] != Password {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "wrong admin password"})
		return
	}
	if keys, ok := body[KeysField]; ok {
		s.GeminiKeys = nil
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				s.GeminiKeys = append(s.GeminiKeys, k)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "settings updated"})
}

// listMappings writes the object by hand so key order is preserved.
func (s *Server) listMappings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	b.WriteString("{")
	for i, m := range s.Mappings {
		if i > 0 {
			b.WriteString(",")
		}
		k, _ := json.Marshal(m.Prefix)
		v, _ := json.Marshal(m.TargetURL)
		b.Write(k)
		b.WriteString(":")
		b.Write(v)
	}
	b.WriteString("}")
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(b.String()))
}

func (s *Server) createMapping(w http.ResponseWriter, r *http.Request) {
	var m models.APIMapping
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.Mappings {
		if existing.Prefix == m.Prefix {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "prefix already exists"})
			return
		}
	}
	s.Mappings = append(s.Mappings, m)
	writeJSON(w, http.StatusOK, map[string]string{"message": "mapping added"})
}

func (s *Server) updateMapping(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OldPrefix string `json:"old_prefix"`
		NewPrefix string `json:"new_prefix"`
		TargetURL string `json:"target_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.Mappings {
		if m.Prefix == body.OldPrefix {
			s.Mappings[i] = models.APIMapping{Prefix: body.NewPrefix, TargetURL: body.TargetURL}
			writeJSON(w, http.StatusOK, map[string]string{"message": "mapping updated"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "mapping not found"})
}

func (s *Server) deleteMapping(w http.ResponseWriter, r *http.Request) {
	prefix := "/" + param(r, "prefix")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.Mappings {
		if m.Prefix == prefix {
			s.Mappings = append(s.Mappings[:i], s.Mappings[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "mapping deleted"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "mapping not found"})
}

func (s *Server) listAccessKeys(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	b.WriteString("{")
	for i, k := range s.AccessKeys {
		if i > 0 {
			b.WriteString(",")
		}
		id, _ := json.Marshal(k.Key)
		v, _ := json.Marshal(k)
		b.Write(id)
		b.WriteString(":")
		b.Write(v)
	}
	b.WriteString("}")
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(b.String()))
}

func (s *Server) createAccessKey(w http.ResponseWriter, r *http.Request) {
	var k models.AccessKey
	if err := json.NewDecoder(r.Body).Decode(&k); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.AccessKeys {
		if existing.Key == k.Key {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "key already exists"})
			return
		}
	}
	s.AccessKeys = append(s.AccessKeys, k)
	writeJSON(w, http.StatusOK, map[string]string{"message": "access key created"})
}

func (s *Server) updateAccessKey(w http.ResponseWriter, r *http.Request) {
	key := param(r, "key")
	var k models.AccessKey
	if err := json.NewDecoder(r.Body).Decode(&k); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.AccessKeys {
		if existing.Key == key {
			k.Key = key
			s.AccessKeys[i] = k
			writeJSON(w, http.StatusOK, map[string]string{"message": "access key updated"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "access key not found"})
}

func (s *Server) deleteAccessKey(w http.ResponseWriter, r *http.Request) {
	key := param(r, "key")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.AccessKeys {
		if existing.Key == key {
			s.AccessKeys = append(s.AccessKeys[:i], s.AccessKeys[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "access key deleted"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "access key not found"})
}

func (s *Server) checkKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key   string `json:"key"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	s.mu.Lock()
	s.CheckCalls = append(s.CheckCalls, CheckCall{Key: body.Key, Model: body.Model, At: time.Now()})
	valid := s.ValidKeys[body.Key]
	s.mu.Unlock()

	if valid {
		writeJSON(w, http.StatusOK, models.KeyCheckResult{Valid: true, Message: "key is valid"})
		return
	}
	writeJSON(w, http.StatusOK, models.KeyCheckResult{Valid: false, Message: "API key not valid"})
}

func (s *Server) listMedia(w http.ResponseWriter, r *http.Request) {
	storage := r.URL.Query().Get("storage_type")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}

	s.mu.Lock()
	files := append([]models.MediaFile(nil), s.Media[storage]...)
	s.mu.Unlock()

	sort.SliceStable(files, func(i, j int) bool { return files[i].CreatedAt > files[j].CreatedAt })
	start := (page - 1) * size
	end := start + size
	if start > len(files) {
		start = len(files)
	}
	if end > len(files) {
		end = len(files)
	}
	writeJSON(w, http.StatusOK, models.MediaPage{
		Files:    files[start:end],
		Total:    len(files),
		Page:     page,
		PageSize: size,
	})
}

func (s *Server) deleteMedia(w http.ResponseWriter, r *http.Request) {
	storage := r.URL.Query().Get("storage_type")
	var names []string
	if err := json.NewDecoder(r.Body).Decode(&names); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	s.mu.Lock()
	var kept []models.MediaFile
	removed := 0
	for _, f := range s.Media[storage] {
		if drop[f.Filename] {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	s.Media[storage] = kept
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": strconv.Itoa(removed) + " files deleted"})
}

func (s *Server) storageDetails(w http.ResponseWriter, r *http.Request) {
	storage := r.URL.Query().Get("storage_type")
	s.mu.Lock()
	details, ok := s.Storage[storage]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "unknown storage"})
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StaticTokens is a TokenSource with a fixed token that records expiry.
type StaticTokens struct {
	mu      sync.Mutex
	Value   string
	Expired bool
}

func (t *StaticTokens) Token() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Value, nil
}

func (t *StaticTokens) Expire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Expired = true
}

func (t *StaticTokens) WasExpired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Expired
}
