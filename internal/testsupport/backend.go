package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"kmlc/internal/api"
)

// Backend is an in-process classification service for tests. It follows the
// real service's routes, permission checks, and error details closely enough
// for client code to be exercised end to end.
type Backend struct {
	t      testing.TB
	Server *httptest.Server

	mu         sync.Mutex
	secret     []byte
	users      map[string]*backendUser
	tasks      map[string]api.Task
	order      []string
	topics     map[string]api.Topic
	downloads  map[string][]byte
	requests   []RecordedRequest
	failures   map[string]injectedFailure
	uploadRows int
}

type backendUser struct {
	password           string
	role               string
	mustChangePassword bool
	createdAt          time.Time
}

type injectedFailure struct {
	status int
	detail string
}

// RecordedRequest captures one request the backend received.
type RecordedRequest struct {
	Method     string
	Path       string
	RequestID  string
	Authorized bool
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type ctxUserKey struct{}

// NewBackend starts a Backend with an admin account (admin/admin123) and a
// single topic "topic-1".
func NewBackend(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		t:          t,
		secret:     []byte(uuid.NewString()),
		users:      make(map[string]*backendUser),
		tasks:      make(map[string]api.Task),
		topics:     make(map[string]api.Topic),
		downloads:  make(map[string][]byte),
		failures:   make(map[string]injectedFailure),
		uploadRows: 10,
	}
	b.users["admin"] = &backendUser{password: "admin123", role: "admin", createdAt: time.Now()}
	b.topics["topic-1"] = api.Topic{
		TopicID:     "topic-1",
		Name:        "Banking",
		LLMProvider: "openai",
		Model:       "gpt-4o-mini",
		APIKey:      "sk-test",
		MaxTokens:   150,
		CreatedBy:   "admin",
	}

	b.Server = httptest.NewServer(b.routes())
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the backend root.
func (b *Backend) URL() string { return b.Server.URL }

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.record)
	r.Use(b.injectFailures)

	r.Post("/api/auth/login", b.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(b.authenticate)

		r.Get("/api/auth/me", b.handleMe)
		r.Post("/api/auth/change-password", b.handleChangePassword)

		r.Get("/api/tasks", b.handleListTasks)
		r.Delete("/api/tasks/{id}", b.handleDeleteTask)
		r.Post("/api/classify/{id}", b.handleClassify)
		r.Get("/api/download/{id}", b.handleDownload)
		r.Post("/api/upload", b.handleUpload)

		r.Get("/api/topics", b.handleListTopics)
		r.Get("/api/topics/{id}", b.handleGetTopic)

		r.Group(func(r chi.Router) {
			r.Use(b.requireAdmin)
			r.Post("/api/topics", b.handleCreateTopic)
			r.Put("/api/topics/{id}", b.handleUpdateTopic)
			r.Delete("/api/topics/{id}", b.handleDeleteTopic)
			r.Get("/api/auth/users", b.handleListUsers)
			r.Post("/api/auth/users", b.handleCreateUser)
			r.Delete("/api/auth/users/{username}", b.handleDeleteUser)
		})
	})
	return r
}

// ---- test controls ----

// AddUser creates or replaces an account.
func (b *Backend) AddUser(username, password, role string, mustChangePassword bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[username] = &backendUser{password: password, role: role, mustChangePassword: mustChangePassword, createdAt: time.Now()}
}

// Password returns the stored password for username.
func (b *Backend) Password(username string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u, ok := b.users[username]; ok {
		return u.password
	}
	return ""
}

// PutTask inserts or replaces a task.
func (b *Backend) PutTask(task api.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tasks[task.JobID]; !ok {
		b.order = append(b.order, task.JobID)
	}
	b.tasks[task.JobID] = task
}

// SetStatus moves a task to status with the given progress, as the worker would.
func (b *Backend) SetStatus(jobID, status string, progress float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	task, ok := b.tasks[jobID]
	if !ok {
		b.t.Fatalf("backend: unknown task %s", jobID)
	}
	task.Status = status
	task.Progress = progress
	b.tasks[jobID] = task
}

// Task returns the stored task.
func (b *Backend) Task(jobID string) (api.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	task, ok := b.tasks[jobID]
	return task, ok
}

// SetDownload sets the classified workbook bytes served for jobID.
func (b *Backend) SetDownload(jobID string, content []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.downloads[jobID] = content
}

// FailNext makes the next request to "METHOD /path" answer with status and detail.
func (b *Backend) FailNext(method, path string, status int, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method+" "+path] = injectedFailure{status: status, detail: detail}
}

// RotateSecret invalidates every token issued so far.
func (b *Backend) RotateSecret() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.secret = []byte(uuid.NewString())
}

// Requests returns every request received so far.
func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RecordedRequest(nil), b.requests...)
}

// Count returns how many requests matched method and path.
func (b *Backend) Count(method, path string) int {
	n := 0
	for _, req := range b.Requests() {
		if req.Method == method && req.Path == path {
			n++
		}
	}
	return n
}

// Token mints a valid token for username without going through login.
func (b *Backend) Token(username string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	user, ok := b.users[username]
	if !ok {
		b.t.Fatalf("backend: unknown user %s", username)
	}
	token, err := b.mintLocked(username, user.role)
	if err != nil {
		b.t.Fatalf("backend: mint token: %v", err)
	}
	return token
}

// ---- middleware ----

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, RecordedRequest{
			Method:     r.Method,
			Path:       r.URL.Path,
			RequestID:  r.Header.Get("X-Request-ID"),
			Authorized: r.Header.Get("Authorization") != "",
		})
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		b.mu.Lock()
		failure, ok := b.failures[key]
		delete(b.failures, key)
		b.mu.Unlock()
		if ok {
			writeDetail(w, failure.status, failure.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		b.mu.Lock()
		secret := b.secret
		b.mu.Unlock()

		parsed := &claims{}
		tkn, err := jwt.ParseWithClaims(strings.TrimSpace(hdr[7:]), parsed, func(t *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tkn.Valid {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		b.mu.Lock()
		_, exists := b.users[parsed.Subject]
		b.mu.Unlock()
		if !exists {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserKey{}, parsed.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (b *Backend) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.isAdmin(currentUser(r)) {
			writeDetail(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) string {
	name, _ := r.Context().Value(ctxUserKey{}).(string)
	return name
}

func (b *Backend) isAdmin(username string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[username]
	return ok && u.role == "admin"
}

func (b *Backend) mintLocked(username, role string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	return token.SignedString(b.secret)
}

// ---- auth handlers ----

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	b.mu.Lock()
	user, ok := b.users[in.Username]
	if !ok || user.password != in.Password {
		b.mu.Unlock()
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	token, err := b.mintLocked(in.Username, user.role)
	resp := api.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        api.Identity{Username: in.Username, Role: user.role, MustChangePassword: user.mustChangePassword},
	}
	b.mu.Unlock()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	name := currentUser(r)
	b.mu.Lock()
	user := b.users[name]
	identity := api.Identity{Username: name, Role: user.role, MustChangePassword: user.mustChangePassword}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, identity)
}

func (b *Backend) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	user := b.users[currentUser(r)]
	if user.password != in.OldPassword {
		writeDetail(w, http.StatusBadRequest, "Incorrect old password")
		return
	}
	user.password = in.NewPassword
	user.mustChangePassword = false
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

// ---- task handlers ----

func (b *Backend) handleListTasks(w http.ResponseWriter, r *http.Request) {
	name := currentUser(r)
	admin := b.isAdmin(name)
	status := r.URL.Query().Get("status")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	b.mu.Lock()
	tasks := make([]api.Task, 0, len(b.order))
	for i := len(b.order) - 1; i >= 0; i-- {
		task := b.tasks[b.order[i]]
		if status != "" && task.Status != status {
			continue
		}
		if !admin && task.User != name {
			continue
		}
		tasks = append(tasks, task)
		if len(tasks) == limit {
			break
		}
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

// lookupOwned resolves {id} and enforces ownership. It writes the error answer
// and returns false when the caller must stop.
func (b *Backend) lookupOwned(w http.ResponseWriter, r *http.Request) (api.Task, bool) {
	id := chi.URLParam(r, "id")
	name := currentUser(r)
	admin := b.isAdmin(name)

	b.mu.Lock()
	task, ok := b.tasks[id]
	b.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Task not found")
		return api.Task{}, false
	}
	if !admin && task.User != name {
		writeDetail(w, http.StatusForbidden, "Not authorized")
		return api.Task{}, false
	}
	return task, true
}

func (b *Backend) handleClassify(w http.ResponseWriter, r *http.Request) {
	task, ok := b.lookupOwned(w, r)
	if !ok {
		return
	}
	if task.Status == "processing" || task.Status == "completed" {
		writeDetail(w, http.StatusBadRequest, "Task is already "+task.Status)
		return
	}
	b.mu.Lock()
	task.Status = "pending"
	task.Progress = 0
	b.tasks[task.JobID] = task
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Task added to queue", "job_id": task.JobID, "status": "pending"})
}

func (b *Backend) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	task, ok := b.lookupOwned(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if task.Status == "processing" {
		task.Status = "cancelled"
		b.tasks[task.JobID] = task
		writeJSON(w, http.StatusOK, map[string]string{"message": "Task cancelled"})
		return
	}
	delete(b.tasks, task.JobID)
	delete(b.downloads, task.JobID)
	for i, id := range b.order {
		if id == task.JobID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
}

func (b *Backend) handleDownload(w http.ResponseWriter, r *http.Request) {
	task, ok := b.lookupOwned(w, r)
	if !ok {
		return
	}
	if task.Status != "completed" {
		writeDetail(w, http.StatusBadRequest, "Task not completed yet")
		return
	}
	b.mu.Lock()
	content, ok := b.downloads[task.JobID]
	b.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Output file not found")
		return
	}
	stem := strings.Replace(task.Filename, ".xlsx", "", 1)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_classified.xlsx"`, stem))
	_, _ = w.Write(content)
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer file.Close()
	if !strings.HasSuffix(header.Filename, ".xlsx") {
		writeDetail(w, http.StatusBadRequest, "Only .xlsx files are supported")
		return
	}
	if _, err := io.Copy(io.Discard, file); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	topicID := r.FormValue("topic_id")
	b.mu.Lock()
	defer b.mu.Unlock()
	topic, ok := b.topics[topicID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Topic not found")
		return
	}
	jobID := uuid.NewString()
	b.tasks[jobID] = api.Task{
		JobID:     jobID,
		User:      currentUser(r),
		TopicID:   topicID,
		TopicName: topic.Name,
		Filename:  header.Filename,
		Rows:      b.uploadRows,
		Status:    "uploaded",
		CreatedAt: time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
	}
	b.order = append(b.order, jobID)
	writeJSON(w, http.StatusOK, api.UploadResult{JobID: jobID, Filename: header.Filename, Rows: b.uploadRows, Topic: topic.Name})
}

// ---- topic handlers ----

func (b *Backend) handleListTopics(w http.ResponseWriter, r *http.Request) {
	admin := b.isAdmin(currentUser(r))
	b.mu.Lock()
	topics := make([]api.Topic, 0, len(b.topics))
	for _, topic := range b.topics {
		if !admin {
			topic.APIKey = ""
		}
		topics = append(topics, topic)
	}
	b.mu.Unlock()
	sort.Slice(topics, func(i, j int) bool { return topics[i].TopicID < topics[j].TopicID })
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (b *Backend) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	admin := b.isAdmin(currentUser(r))
	b.mu.Lock()
	topic, ok := b.topics[chi.URLParam(r, "id")]
	b.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Topic not found")
		return
	}
	if !admin {
		topic.APIKey = ""
	}
	writeJSON(w, http.StatusOK, topic)
}

func (b *Backend) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	var in api.TopicInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	id := uuid.NewString()
	b.mu.Lock()
	b.topics[id] = api.Topic{
		TopicID:        id,
		Name:           in.Name,
		Description:    in.Description,
		LLMProvider:    in.LLMProvider,
		Model:          in.Model,
		APIBaseURL:     in.APIBaseURL,
		APIKey:         in.APIKey,
		PromptTemplate: in.PromptTemplate,
		Temperature:    in.Temperature,
		MaxTokens:      in.MaxTokens,
		CreatedBy:      currentUser(r),
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Topic created successfully", "topic_id": id})
}

func (b *Backend) handleUpdateTopic(w http.ResponseWriter, r *http.Request) {
	var patch api.TopicPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	topic, ok := b.topics[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Topic not found")
		return
	}
	if patch.Name != nil {
		topic.Name = *patch.Name
	}
	if patch.Description != nil {
		topic.Description = *patch.Description
	}
	if patch.Model != nil {
		topic.Model = *patch.Model
	}
	if patch.Temperature != nil {
		topic.Temperature = *patch.Temperature
	}
	if patch.MaxTokens != nil {
		topic.MaxTokens = *patch.MaxTokens
	}
	b.topics[id] = topic
	writeJSON(w, http.StatusOK, map[string]string{"message": "Topic updated successfully"})
}

func (b *Backend) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[id]; !ok {
		writeDetail(w, http.StatusNotFound, "Topic not found")
		return
	}
	delete(b.topics, id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Topic deleted successfully"})
}

// ---- user handlers ----

func (b *Backend) handleListUsers(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	users := make([]api.User, 0, len(b.users))
	for name, u := range b.users {
		users = append(users, api.User{
			Username:           name,
			Role:               u.role,
			MustChangePassword: u.mustChangePassword,
			CreatedAt:          u.createdAt.UTC().Format("2006-01-02T15:04:05.000000"),
		})
	}
	b.mu.Unlock()
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (b *Backend) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in api.UserInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	if len(in.Username) < 3 || len(in.Password) < 6 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body"}, "msg": "username or password too short"}},
		})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[in.Username]; exists {
		writeDetail(w, http.StatusBadRequest, "Username already exists")
		return
	}
	role := in.Role
	if role == "" {
		role = "user"
	}
	b.users[in.Username] = &backendUser{password: in.Password, role: role, mustChangePassword: true, createdAt: time.Now()}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User created successfully", "username": in.Username})
}

func (b *Backend) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "username")
	if name == "admin" {
		writeDetail(w, http.StatusBadRequest, "Cannot delete admin user")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[name]; !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	delete(b.users, name)
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

