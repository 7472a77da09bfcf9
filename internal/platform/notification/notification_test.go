package notification

import (
	"bytes"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func TestBuildMessage_IncludesAttachment(t *testing.T) {
	msg, err := buildMessage("noreply@smilehealth.test", "support@smilehealth.test",
		"Feedback", "Something broke",
		[]Attachment{{FileName: "screen.png", ContentType: "image/png", Data: []byte{1, 2, 3}}})
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}

	for _, want := range [][]byte{
		[]byte("Subject: Feedback"),
		[]byte("Something broke"),
		[]byte(`filename="screen.png"`),
		[]byte("Content-Transfer-Encoding: base64"),
	} {
		if !bytes.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestMailer_FireAndForget(t *testing.T) {
	sender := &LoopbackSender{}
	m := NewMailer(sender, "support@smilehealth.test", zerolog.New(os.Stderr))

	m.SendFeedback("Feedback from drsmith", "The 3D viewer is slow", nil)
	m.Wait()

	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].To != "support@smilehealth.test" {
		t.Errorf("unexpected recipient %s", sent[0].To)
	}
	if sent[0].Subject != "Feedback from drsmith" {
		t.Errorf("unexpected subject %s", sent[0].Subject)
	}
}
