package uplink

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret []byte, subject string, seq int64) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"seq": seq,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestHandleCommandRejectsMissingToken(t *testing.T) {
	srv := New([]byte("secret"), nil)
	req := httptest.NewRequest(http.MethodPost, "/command", bytes.NewBufferString(`{"kind":"ARM"}`))
	rec := httptest.NewRecorder()
	srv.HandleCommand(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleCommandAcceptsValidToken(t *testing.T) {
	secret := []byte("secret")
	srv := New(secret, nil)
	tok := signToken(t, secret, "ground-station", 1)

	req := httptest.NewRequest(http.MethodPost, "/command?token="+tok, bytes.NewBufferString(`{"kind":"ARM"}`))
	rec := httptest.NewRecorder()
	srv.HandleCommand(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	select {
	case cmd := <-srv.Commands():
		if cmd.Kind != CommandArm || cmd.Subject != "ground-station" || cmd.Seq != 1 {
			t.Fatalf("unexpected command: %+v", cmd)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a command on the channel")
	}
}

func TestHandleCommandRejectsWrongSecret(t *testing.T) {
	srv := New([]byte("secret"), nil)
	tok := signToken(t, []byte("wrong-secret"), "attacker", 1)

	req := httptest.NewRequest(http.MethodPost, "/command?token="+tok, bytes.NewBufferString(`{"kind":"DISARM"}`))
	rec := httptest.NewRecorder()
	srv.HandleCommand(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleCommandRejectsUnknownKind(t *testing.T) {
	secret := []byte("secret")
	srv := New(secret, nil)
	tok := signToken(t, secret, "ground-station", 1)

	req := httptest.NewRequest(http.MethodPost, "/command?token="+tok, bytes.NewBufferString(`{"kind":"LAUNCH"}`))
	rec := httptest.NewRecorder()
	srv.HandleCommand(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleCommandRejectsReplayedSeq(t *testing.T) {
	secret := []byte("secret")
	srv := New(secret, nil)
	tok := signToken(t, secret, "ground-station", 5)

	first := httptest.NewRequest(http.MethodPost, "/command?token="+tok, bytes.NewBufferString(`{"kind":"ARM"}`))
	rec := httptest.NewRecorder()
	srv.HandleCommand(rec, first)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 on first use", rec.Code)
	}
	<-srv.Commands()

	replay := httptest.NewRequest(http.MethodPost, "/command?token="+tok, bytes.NewBufferString(`{"kind":"ARM"}`))
	rec = httptest.NewRecorder()
	srv.HandleCommand(rec, replay)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 on replayed seq", rec.Code)
	}
}

func TestHandleCommandRejectsOutOfOrderSeq(t *testing.T) {
	secret := []byte("secret")
	srv := New(secret, nil)

	high := signToken(t, secret, "ground-station", 10)
	req := httptest.NewRequest(http.MethodPost, "/command?token="+high, bytes.NewBufferString(`{"kind":"ARM"}`))
	rec := httptest.NewRecorder()
	srv.HandleCommand(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	<-srv.Commands()

	low := signToken(t, secret, "ground-station", 3)
	req = httptest.NewRequest(http.MethodPost, "/command?token="+low, bytes.NewBufferString(`{"kind":"DISARM"}`))
	rec = httptest.NewRecorder()
	srv.HandleCommand(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 on out-of-order seq", rec.Code)
	}
}
