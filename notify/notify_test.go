package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestMessageValidate(t *testing.T) {
	m := Message{To: "alice@example.com", Subject: "hi"}
	if err := m.Validate(); err != nil {
		t.Errorf("valid message rejected: %v", err)
	}

	empty := Message{Subject: "hi"}
	if err := empty.Validate(); !errors.Is(err, ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
}

func TestBuildMIMEPlain(t *testing.T) {
	m := Message{
		To:      "alice@example.com",
		Subject: "Your turn to sign",
		Body:    "Please sign here.",
	}
	wire := string(BuildMIME("noreply@example.com", m))

	for _, want := range []string{
		"From: noreply@example.com\r\n",
		"To: alice@example.com\r\n",
		"Subject: Your turn to sign\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n",
		"Please sign here.",
	} {
		if !strings.Contains(wire, want) {
			t.Errorf("missing %q in:\n%s", want, wire)
		}
	}
	if strings.Contains(wire, "multipart/mixed") {
		t.Error("plain message rendered as multipart")
	}
}

func TestBuildMIMEAttachment(t *testing.T) {
	m := Message{
		To:      "bob@example.com",
		Subject: "Completed document",
		Body:    "All parties have signed.",
		Attachment: &Attachment{
			Name:        "contract.pdf",
			ContentType: "application/pdf",
			Data:        []byte("%PDF-1.7 fake"),
		},
	}
	wire := string(BuildMIME("noreply@example.com", m))

	for _, want := range []string{
		"Content-Type: multipart/mixed; boundary=signflow-mime-boundary",
		"Content-Type: application/pdf\r\n",
		"Content-Transfer-Encoding: base64\r\n",
		`Content-Disposition: attachment; filename="contract.pdf"`,
		"--signflow-mime-boundary--\r\n",
	} {
		if !strings.Contains(wire, want) {
			t.Errorf("missing %q in:\n%s", want, wire)
		}
	}
}

func TestBuildMIMEAttachmentLineWrap(t *testing.T) {
	data := make([]byte, 600)
	for i := range data {
		data[i] = byte(i)
	}
	m := Message{
		To:         "bob@example.com",
		Subject:    "big",
		Attachment: &Attachment{Name: "blob.bin", Data: data},
	}
	wire := string(BuildMIME("noreply@example.com", m))

	if !strings.Contains(wire, "Content-Type: application/octet-stream\r\n") {
		t.Error("missing default content type for attachment")
	}
	// Base64 payload lines stay within the 76-column RFC limit.
	inBody := false
	for _, line := range strings.Split(wire, "\r\n") {
		if strings.HasPrefix(line, "Content-Disposition:") {
			inBody = true
			continue
		}
		if inBody && strings.HasPrefix(line, "--") {
			break
		}
		if inBody && len(line) > 76 {
			t.Errorf("base64 line exceeds 76 chars: %d", len(line))
		}
	}
}

func TestBuildMIMESubjectEncoding(t *testing.T) {
	m := Message{To: "a@b.c", Subject: "signé"}
	wire := string(BuildMIME("noreply@example.com", m))
	if !strings.Contains(wire, "=?utf-8?") {
		t.Errorf("non-ASCII subject not encoded:\n%s", wire)
	}
}

// recordNotifier records successful sends for assertions.
type recordNotifier struct {
	mu    sync.Mutex
	sent  []Message
	errFn func(Message) error
}

func (n *recordNotifier) Send(ctx context.Context, m Message) error {
	if n.errFn != nil {
		if err := n.errFn(m); err != nil {
			return err
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, m)
	return nil
}

func TestMemoryQueueDelivers(t *testing.T) {
	n := &recordNotifier{}
	q := NewMemoryQueue(n)

	if err := q.Enqueue(context.Background(), Message{To: "a@b.c", Subject: "one"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(context.Background(), Message{To: "a@b.c", Subject: "two"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.Close()

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) != 2 {
		t.Errorf("delivered %d messages, want 2", len(n.sent))
	}
}

func TestMemoryQueueSwallowsSendErrors(t *testing.T) {
	n := &recordNotifier{errFn: func(Message) error { return errors.New("relay down") }}
	q := NewMemoryQueue(n)

	if err := q.Enqueue(context.Background(), Message{To: "a@b.c"}); err != nil {
		t.Errorf("Enqueue surfaced transport error: %v", err)
	}
	q.Close()

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) != 0 {
		t.Errorf("failed send recorded as delivered")
	}
}

func TestMemoryQueueClosed(t *testing.T) {
	q := NewMemoryQueue(&recordNotifier{})
	q.Close()
	if err := q.Enqueue(context.Background(), Message{To: "a@b.c"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}

func TestMemoryQueueRejectsInvalid(t *testing.T) {
	q := NewMemoryQueue(&recordNotifier{})
	defer q.Close()
	if err := q.Enqueue(context.Background(), Message{}); !errors.Is(err, ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
}

func TestCollectQueue(t *testing.T) {
	q := &CollectQueue{}
	if err := q.Enqueue(context.Background(), Message{To: "a@b.c", Subject: "x"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got := q.Sent(); len(got) != 1 || got[0].Subject != "x" {
		t.Errorf("Sent() = %+v", got)
	}

	q.FailWith = errors.New("boom")
	if err := q.Enqueue(context.Background(), Message{To: "a@b.c"}); err == nil {
		t.Error("expected injected failure")
	}
	if len(q.Sent()) != 1 {
		t.Error("failed enqueue was recorded")
	}

	q.Reset()
	if len(q.Sent()) != 0 {
		t.Error("Reset did not clear messages")
	}
}
