package approval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// capturePublisher records published requests and hands them to the test.
type capturePublisher struct {
	mu   sync.Mutex
	reqs []Request
	got  chan Request
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{got: make(chan Request, 4)}
}

func (p *capturePublisher) PublishApprovalRequest(req Request) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()
	p.got <- req
}

func askPolicy() Policy {
	return Policy{
		Rules: []Rule{
			{Pattern: "rm*", Level: LevelDeny},
			{Pattern: "git push*", Level: LevelRequireApproval},
		},
		DefaultLevel: LevelAllow,
	}
}

func TestRequestApprovalAllowPassesThrough(t *testing.T) {
	eng := NewEngine(askPolicy(), newCapturePublisher())
	if err := eng.RequestApproval(context.Background(), "s", "cli", "1", "ls", "/tmp", "", []string{"-la"}, 5); err != nil {
		t.Fatalf("allow-classified command should not block: %v", err)
	}
}

func TestRequestApprovalDenyShortCircuits(t *testing.T) {
	pub := newCapturePublisher()
	eng := NewEngine(askPolicy(), pub)
	err := eng.RequestApproval(context.Background(), "s", "cli", "1", "rm", "/tmp", "", []string{"/tmp/x"}, 5)
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("deny-classified command error = %v, want ErrDenied", err)
	}
	if len(pub.reqs) != 0 {
		t.Error("deny must not publish an approval request")
	}
}

func TestRequestApprovalApprovePath(t *testing.T) {
	pub := newCapturePublisher()
	eng := NewEngine(askPolicy(), pub)

	errc := make(chan error, 1)
	go func() {
		errc <- eng.RequestApproval(context.Background(), "s", "cli", "1", "git", "/repo", "", []string{"push", "origin"}, 30)
	}()

	var req Request
	select {
	case req = <-pub.got:
	case <-time.After(time.Second):
		t.Fatal("approval request never published")
	}
	if req.Command != "git" || req.Channel != "cli" {
		t.Fatalf("published request = %+v", req)
	}

	if ok := eng.ResolveText(req.ID, "alice", "同意"); !ok {
		t.Fatal("ResolveText did not recognize the approval phrase")
	}
	if err := <-errc; err != nil {
		t.Fatalf("approved request returned error: %v", err)
	}
}

func TestRequestApprovalRejectionPath(t *testing.T) {
	pub := newCapturePublisher()
	eng := NewEngine(askPolicy(), pub)

	errc := make(chan error, 1)
	go func() {
		errc <- eng.RequestApproval(context.Background(), "s", "cli", "1", "git", "/repo", "", []string{"push"}, 30)
	}()
	req := <-pub.got
	eng.Resolve(Response{RequestID: req.ID, Approved: false, Responder: "bob"})

	err := <-errc
	if !errors.Is(err, ErrDenied) || !strings.Contains(err.Error(), "bob") {
		t.Fatalf("rejection error = %v", err)
	}
}

func TestRequestApprovalTimeoutIsDenial(t *testing.T) {
	eng := NewEngine(askPolicy(), newCapturePublisher())
	start := time.Now()
	err := eng.RequestApproval(context.Background(), "s", "cli", "1", "git", "/repo", "", []string{"push"}, 1)
	if !errors.Is(err, ErrDenied) || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("timeout error = %v, want denial with reason timeout", err)
	}
	if time.Since(start) < time.Second {
		t.Error("timed out before the configured timeout elapsed")
	}
}

func TestResolveUnknownIDIsDropped(t *testing.T) {
	eng := NewEngine(askPolicy(), newCapturePublisher())
	eng.Resolve(Response{RequestID: "never-issued", Approved: true}) // must not panic or block
}

func TestResolveDeliversAtMostOnce(t *testing.T) {
	pub := newCapturePublisher()
	eng := NewEngine(askPolicy(), pub)

	errc := make(chan error, 1)
	go func() {
		errc <- eng.RequestApproval(context.Background(), "s", "cli", "1", "git", "/repo", "", []string{"push"}, 30)
	}()
	req := <-pub.got
	eng.Resolve(Response{RequestID: req.ID, Approved: true, Responder: "alice"})
	eng.Resolve(Response{RequestID: req.ID, Approved: false, Responder: "mallory"})

	if err := <-errc; err != nil {
		t.Fatalf("first resolution should win: %v", err)
	}
}

func TestShutdownDeniesAllPending(t *testing.T) {
	pub := newCapturePublisher()
	eng := NewEngine(askPolicy(), pub)

	errc := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			errc <- eng.RequestApproval(context.Background(), "s", "cli", "1", "git", "/repo", "", []string{"push"}, 60)
		}()
	}
	<-pub.got
	<-pub.got

	eng.Shutdown()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errc:
			if !errors.Is(err, ErrDenied) {
				t.Fatalf("pending request after shutdown = %v, want denial", err)
			}
		case <-time.After(time.Second):
			t.Fatal("pending request still blocked after shutdown")
		}
	}
}

func TestRequestApprovalContextCancellation(t *testing.T) {
	pub := newCapturePublisher()
	eng := NewEngine(askPolicy(), pub)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- eng.RequestApproval(ctx, "s", "cli", "1", "git", "/repo", "", []string{"push"}, 60)
	}()
	<-pub.got
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrDenied) {
			t.Fatalf("cancelled request = %v, want denial", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled request still blocked")
	}
}

func TestClassifyDefaultLevel(t *testing.T) {
	p := Policy{Rules: []Rule{{Pattern: "ls*", Level: LevelAllow}}}
	if got := p.Classify("whoami", nil); got != LevelRequireApproval {
		t.Errorf("empty DefaultLevel should fall back to RequireApproval, got %v", got)
	}
}

func TestGlobMatching(t *testing.T) {
	cases := []struct {
		pattern, subject string
		want             bool
	}{
		{"rm*", "rm /tmp/x", true},
		{"rm*", "rmdir", true},
		{"rm *", "rmdir x", false},
		{"git push*", "git push origin main", true},
		{"git push*", "git pull", false},
		{"?ash", "bash", true},
		{"?ash", "smash", false},
		{"*", "anything at all", true},
	}
	for _, c := range cases {
		if got := matchAnchoredGlob(c.pattern, c.subject); got != c.want {
			t.Errorf("match(%q, %q) = %v, want %v", c.pattern, c.subject, got, c.want)
		}
	}
}
