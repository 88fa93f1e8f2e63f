package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sucursal-ops/sucursal-ops/internal/shared"
)

func newSessionManager(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
}

func TestSessionRoundTrip(t *testing.T) {
	sm := newSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.SetEmployee(42)
	sess.Set("sucursal_id", "2")

	res := httptest.NewRecorder()
	if err := sm.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	cookies := res.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}

	// Replay the cookie and expect the same data back.
	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, again)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if loaded.Employee() != 42 {
		t.Fatalf("expected employee 42, got %d", loaded.Employee())
	}
	if loaded.Get("sucursal_id") != "2" {
		t.Fatalf("expected branch value to survive, got %q", loaded.Get("sucursal_id"))
	}
}

func TestSessionRotateInvalidatesOldID(t *testing.T) {
	sm := newSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.SetEmployee(42)
	res := httptest.NewRecorder()
	if err := sm.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	oldCookie := res.Result().Cookies()[0]

	if err := sm.Rotate(ctx, sess); err != nil {
		t.Fatalf("rotate session: %v", err)
	}
	if sess.ID == oldCookie.Value {
		t.Fatalf("expected a fresh session id after rotation")
	}
	res = httptest.NewRecorder()
	if err := sm.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit rotated session: %v", err)
	}

	// The pre-rotation id no longer resolves to stored state.
	stale := httptest.NewRequest(http.MethodGet, "/", nil)
	stale.AddCookie(oldCookie)
	loaded, err := sm.Load(ctx, stale)
	if err != nil {
		t.Fatalf("load stale session: %v", err)
	}
	if loaded.Employee() != 0 {
		t.Fatalf("expected anonymous session for stale id, got employee %d", loaded.Employee())
	}
}

func TestSessionDestroyClearsCookie(t *testing.T) {
	sm := newSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.SetEmployee(42)
	res := httptest.NewRecorder()
	if err := sm.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	cookie := res.Result().Cookies()[0]

	sm.Destroy(sess)
	res = httptest.NewRecorder()
	if err := sm.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit destroyed session: %v", err)
	}
	cleared := res.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge != -1 {
		t.Fatalf("expected expired cookie after destroy")
	}

	replay := httptest.NewRequest(http.MethodGet, "/", nil)
	replay.AddCookie(cookie)
	loaded, err := sm.Load(ctx, replay)
	if err != nil {
		t.Fatalf("load after destroy: %v", err)
	}
	if loaded.Employee() != 0 {
		t.Fatalf("expected destroyed session to be gone, got employee %d", loaded.Employee())
	}
}

func TestCSRFTokenLifecycle(t *testing.T) {
	sm := newSessionManager(t)
	cm := shared.NewCSRFManager("csrfsecret")
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}

	token, err := cm.EnsureToken(ctx, sess)
	if err != nil {
		t.Fatalf("ensure token: %v", err)
	}
	if token == "" {
		t.Fatalf("expected a token")
	}

	// Stable within the session.
	second, err := cm.EnsureToken(ctx, sess)
	if err != nil {
		t.Fatalf("ensure token again: %v", err)
	}
	if second != token {
		t.Fatalf("expected stable token, got %q and %q", token, second)
	}

	if err := cm.VerifyToken(ctx, sess, token); err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if err := cm.VerifyToken(ctx, sess, "forged"); err != shared.ErrCSRFTokenMismatch {
		t.Fatalf("expected mismatch error, got %v", err)
	}
	if err := cm.VerifyToken(ctx, sess, ""); err != shared.ErrCSRFTokenMissing {
		t.Fatalf("expected missing error, got %v", err)
	}
}
