package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"kmlc/internal/api"
	"kmlc/internal/config"
	"kmlc/internal/session"
	"kmlc/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	backend    *testsupport.Backend
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("KMLC_SERVER_URL", "")

	backend := testsupport.NewBackend(t)
	backend.AddUser("alice", "secret123", "user", false)

	cfg := testsupport.NewConfig(t, testsupport.WithServer(backend.URL()), testsupport.WithPollInterval(1))
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, backend: backend, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, env *cliTestEnv, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func login(t *testing.T, env *cliTestEnv, username, password string) {
	t.Helper()
	if _, _, err := runCLI(t, env, password+"\n", "login", "-u", username); err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestCLILoginListAndLogout(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "alice\nsecret123\n", "login")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	requireContains(t, out, "Logged in as alice (user)")

	out, _, err = runCLI(t, env, "", "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "No jobs")

	reason := "LLM quota exceeded"
	env.backend.PutTask(api.Task{JobID: "job-failed-1", User: "alice", Filename: "q.xlsx", TopicName: "Banking", Rows: 4, Status: "failed", Progress: 40, Error: &reason})
	out, _, err = runCLI(t, env, "", "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "Failed")
	requireContains(t, out, reason)
	if strings.Contains(out, "#") {
		t.Fatalf("failed job must not render a progress bar:\n%s", out)
	}

	out, _, err = runCLI(t, env, "", "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	requireContains(t, out, "alice")

	if _, _, err := runCLI(t, env, "", "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	_, _, err = runCLI(t, env, "", "jobs", "list")
	if !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected login hint after logout, got %v", err)
	}
}

func TestCLILoginRejectsWrongPassword(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env, "wrong-pass\n", "login", "-u", "alice")
	if err == nil {
		t.Fatal("expected login failure")
	}
	requireContains(t, err.Error(), "Incorrect username or password")
	if !errors.Is(err, session.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if n := env.backend.Count("POST", "/api/auth/login"); n != 1 {
		t.Fatalf("expected exactly one login attempt, got %d", n)
	}

	if _, _, err := runCLI(t, env, "", "whoami"); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected no stored credential, got %v", err)
	}
}

func TestCLIMustChangePasswordFlow(t *testing.T) {
	env := setupCLITestEnv(t)
	env.backend.AddUser("bob", "initial1", "user", true)

	out, _, err := runCLI(t, env, "initial1\n", "login", "-u", "bob")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	requireContains(t, out, "Password change required")

	if _, _, err := runCLI(t, env, "", "jobs", "list"); !errors.Is(err, errMustChange) {
		t.Fatalf("expected password change hint, got %v", err)
	}

	out, _, err = runCLI(t, env, "initial1\nnewpass1\nnewpass1\n", "passwd")
	if err != nil {
		t.Fatalf("passwd: %v", err)
	}
	requireContains(t, out, "Password changed")
	if env.backend.Password("bob") != "newpass1" {
		t.Fatal("expected server password updated")
	}

	if _, _, err := runCLI(t, env, "", "jobs", "list"); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected forced re-login, got %v", err)
	}

	login(t, env, "bob", "newpass1")
	if _, _, err := runCLI(t, env, "", "jobs", "list"); err != nil {
		t.Fatalf("jobs list after re-login: %v", err)
	}
}

func TestCLIPasswdValidatesLocally(t *testing.T) {
	env := setupCLITestEnv(t)
	login(t, env, "alice", "secret123")

	_, _, err := runCLI(t, env, "secret123\nabcdef\nabcdeg\n", "passwd")
	if !errors.Is(err, session.ErrMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	_, _, err = runCLI(t, env, "secret123\nabc\nabc\n", "passwd")
	if !errors.Is(err, session.ErrTooShort) {
		t.Fatalf("expected too short, got %v", err)
	}
	if n := env.backend.Count("POST", "/api/auth/change-password"); n != 0 {
		t.Fatalf("expected no change-password request, got %d", n)
	}

	_, _, err = runCLI(t, env, "not-it\nabcdef\nabcdef\n", "passwd")
	if !errors.Is(err, session.ErrInvalidCredentials) {
		t.Fatalf("expected server rejection, got %v", err)
	}
	requireContains(t, err.Error(), "Incorrect old password")
}

func TestCLIAdminCommandsAreGated(t *testing.T) {
	env := setupCLITestEnv(t)
	login(t, env, "alice", "secret123")

	if _, _, err := runCLI(t, env, "", "users", "list"); !errors.Is(err, errAdminRequired) {
		t.Fatalf("expected admin requirement, got %v", err)
	}
	if n := env.backend.Count("GET", "/api/auth/users"); n != 0 {
		t.Fatalf("expected gate to stop the request, got %d", n)
	}

	login(t, env, "admin", "admin123")
	out, _, err := runCLI(t, env, "", "users", "list")
	if err != nil {
		t.Fatalf("users list: %v", err)
	}
	requireContains(t, out, "alice")

	out, _, err = runCLI(t, env, "", "topics", "create",
		"--name", "Legal", "--provider", "openai", "--model", "gpt-4o-mini",
		"--api-key", "sk-test", "--prompt", "Classify {content}")
	if err != nil {
		t.Fatalf("topics create: %v", err)
	}
	requireContains(t, out, "Created topic")

	out, _, err = runCLI(t, env, "", "topics", "list")
	if err != nil {
		t.Fatalf("topics list: %v", err)
	}
	requireContains(t, out, "Legal")
	requireContains(t, out, "Banking")

	if _, _, err := runCLI(t, env, "", "topics", "update", "topic-1"); err == nil {
		t.Fatal("expected update without fields to fail")
	}
	if _, _, err := runCLI(t, env, "", "topics", "update", "topic-1", "--model", "gpt-4o"); err != nil {
		t.Fatalf("topics update: %v", err)
	}
	out, _, err = runCLI(t, env, "", "topics", "show", "topic-1")
	if err != nil {
		t.Fatalf("topics show: %v", err)
	}
	requireContains(t, out, "gpt-4o")

	out, _, err = runCLI(t, env, "carol-pass\n", "users", "create", "carol")
	if err != nil {
		t.Fatalf("users create: %v", err)
	}
	requireContains(t, out, "Created user account carol")
	if env.backend.Password("carol") != "carol-pass" {
		t.Fatal("expected account created on server")
	}
}

func TestCLIJobActions(t *testing.T) {
	env := setupCLITestEnv(t)
	login(t, env, "alice", "secret123")

	env.backend.PutTask(api.Task{JobID: "job-abcdef12", User: "alice", Filename: "survey.xlsx", TopicName: "Banking", Rows: 3, Status: "completed", Progress: 100})
	env.backend.SetDownload("job-abcdef12", []byte("result"))

	dir := t.TempDir()
	out, _, err := runCLI(t, env, "", "jobs", "download", "job-abc", "--dir", dir)
	if err != nil {
		t.Fatalf("jobs download: %v", err)
	}
	want := filepath.Join(dir, "survey_classified.xlsx")
	requireContains(t, out, want)
	if data, err := os.ReadFile(want); err != nil || string(data) != "result" {
		t.Fatalf("unexpected download %q (%v)", data, err)
	}

	_, _, err = runCLI(t, env, "", "jobs", "start", "job-abc")
	if err == nil {
		t.Fatal("expected start of completed job to fail")
	}
	requireContains(t, err.Error(), "Task is already completed")

	out, _, err = runCLI(t, env, "", "jobs", "watch", "--until-idle")
	if err != nil {
		t.Fatalf("jobs watch: %v", err)
	}
	requireContains(t, out, "Jobs (all)")
	requireContains(t, out, "survey.xlsx")

	out, _, err = runCLI(t, env, "", "jobs", "cancel", "job-abc")
	if err != nil {
		t.Fatalf("jobs cancel: %v", err)
	}
	requireContains(t, out, "Task deleted successfully")
}

func TestCLIUploadAndStart(t *testing.T) {
	env := setupCLITestEnv(t)
	login(t, env, "alice", "secret123")

	path := testsupport.WriteWorkbook(t, env.baseDir, "feedback.xlsx", "PK")
	out, _, err := runCLI(t, env, "", "upload", path, "--topic", "topic-1", "--start")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	requireContains(t, out, "Uploaded feedback.xlsx (10 rows) to topic Banking")
	requireContains(t, out, "queued")

	out, _, err = runCLI(t, env, "", "jobs", "list", "--status", "pending")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "feedback.xlsx")

	csv := testsupport.WriteWorkbook(t, env.baseDir, "feedback.csv", "a,b")
	if _, _, err := runCLI(t, env, "", "upload", csv, "--topic", "topic-1"); err == nil {
		t.Fatal("expected non-xlsx upload to fail")
	}
}

func TestCLIRejectedTokenAsksForLogin(t *testing.T) {
	env := setupCLITestEnv(t)
	login(t, env, "alice", "secret123")

	env.backend.RotateSecret()
	_, _, err := runCLI(t, env, "", "jobs", "list")
	if !errors.Is(err, errSessionRevoked) {
		t.Fatalf("expected re-login hint, got %v", err)
	}
	if _, _, err := runCLI(t, env, "", "jobs", "list"); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected credential cleared, got %v", err)
	}
}

func TestCLIConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.backend.URL())
	requireContains(t, out, "credential store")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, env, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, _, err := runCLI(t, env, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}

	out, _, err = runCLI(t, env, "", "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}
