package speech

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeEndpoint is an in-process stand-in for the live speech endpoint. It
// records every inbound frame and lets tests push server frames back.
type fakeEndpoint struct {
	srv      *httptest.Server
	inbound  chan map[string]any
	outbound chan any
	auth     chan string
}

func newFakeEndpoint(t *testing.T) *fakeEndpoint {
	t.Helper()
	f := &fakeEndpoint{
		inbound:  make(chan map[string]any, 32),
		outbound: make(chan any, 32),
		auth:     make(chan string, 1),
	}
	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.auth <- r.Header.Get("Authorization")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var frame map[string]any
				if err := ws.ReadJSON(&frame); err != nil {
					return
				}
				f.inbound <- frame
			}
		}()
		for {
			select {
			case frame, ok := <-f.outbound:
				if !ok {
					_ = ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(time.Second))
					<-done
					ws.Close()
					return
				}
				if err := ws.WriteJSON(frame); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeEndpoint) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeEndpoint) nextFrame(t *testing.T) map[string]any {
	t.Helper()
	select {
	case frame := <-f.inbound:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame arrived")
		return nil
	}
}

func newConnectedClient(t *testing.T, f *fakeEndpoint) *Client {
	t.Helper()
	c, err := NewClient(Config{
		ProjectID: "proj",
		Location:  "us-central1",
		Model:     "gemini-2.0-flash-exp",
		BaseURL:   f.url(),
	}, StaticTokenProvider("test-token"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background(), "You are the interviewer."); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Disconnect)
	return c
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}, StaticTokenProvider("tok"), nil); err == nil {
		t.Error("missing project id must be rejected")
	}
	if _, err := NewClient(Config{ProjectID: "p"}, nil, nil); err == nil {
		t.Error("missing token provider must be rejected")
	}
}

func TestConnectSendsBearerAndSetupFrame(t *testing.T) {
	f := newFakeEndpoint(t)
	c := newConnectedClient(t, f)

	if got := <-f.auth; got != "Bearer test-token" {
		t.Errorf("authorization = %q", got)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %s", c.State())
	}

	setup := f.nextFrame(t)
	inner, ok := setup["setup"].(map[string]any)
	if !ok {
		t.Fatalf("frame = %v, want setup envelope", setup)
	}
	if inner["model"] != "projects/proj/locations/us-central1/publishers/google/models/gemini-2.0-flash-exp" {
		t.Errorf("model = %v", inner["model"])
	}
	gen, _ := inner["generation_config"].(map[string]any)
	modalities, _ := gen["response_modalities"].([]any)
	if len(modalities) != 1 || modalities[0] != "AUDIO" {
		t.Errorf("response_modalities = %v", modalities)
	}
	si, _ := inner["system_instruction"].(map[string]any)
	parts, _ := si["parts"].([]any)
	part, _ := parts[0].(map[string]any)
	if part["text"] != "You are the interviewer." {
		t.Errorf("system instruction = %v", part)
	}
}

func TestConnectTwiceFails(t *testing.T) {
	f := newFakeEndpoint(t)
	c := newConnectedClient(t, f)
	if err := c.Connect(context.Background(), "again"); err == nil {
		t.Error("second Connect must fail")
	}
}

func TestSendAudioMediaChunkFrame(t *testing.T) {
	f := newFakeEndpoint(t)
	c := newConnectedClient(t, f)
	f.nextFrame(t) // setup

	pcm := []byte{0x10, 0x20, 0x30}
	if !c.SendAudio(pcm, false) {
		t.Fatal("SendAudio = false")
	}

	frame := f.nextFrame(t)
	ri, _ := frame["realtimeInput"].(map[string]any)
	chunks, _ := ri["mediaChunks"].([]any)
	if len(chunks) != 1 {
		t.Fatalf("mediaChunks = %v", ri)
	}
	chunk, _ := chunks[0].(map[string]any)
	if chunk["mimeType"] != "audio/pcm" {
		t.Errorf("mimeType = %v", chunk["mimeType"])
	}
	decoded, err := base64.StdEncoding.DecodeString(chunk["data"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(pcm) {
		t.Errorf("data = %v", decoded)
	}
}

func TestEmptyEndOfTurnSendsExactlyOneFrame(t *testing.T) {
	f := newFakeEndpoint(t)
	c := newConnectedClient(t, f)
	f.nextFrame(t) // setup

	if !c.SendAudio(nil, true) {
		t.Fatal("SendAudio = false")
	}

	frame := f.nextFrame(t)
	ri, _ := frame["realtimeInput"].(map[string]any)
	if ri["audioStreamEnd"] != true {
		t.Errorf("frame = %v, want audioStreamEnd", frame)
	}
	if _, present := ri["mediaChunks"]; present {
		t.Error("empty end-of-turn must not carry media chunks")
	}

	select {
	case extra := <-f.inbound:
		t.Errorf("unexpected extra frame %v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAudioWithEndOfTurnSendsMediaThenEnd(t *testing.T) {
	f := newFakeEndpoint(t)
	c := newConnectedClient(t, f)
	f.nextFrame(t) // setup

	if !c.SendAudio([]byte{1}, true) {
		t.Fatal("SendAudio = false")
	}

	first := f.nextFrame(t)
	ri, _ := first["realtimeInput"].(map[string]any)
	if _, ok := ri["mediaChunks"]; !ok {
		t.Errorf("first frame = %v, want media chunk", first)
	}
	second := f.nextFrame(t)
	ri2, _ := second["realtimeInput"].(map[string]any)
	if ri2["audioStreamEnd"] != true {
		t.Errorf("second frame = %v, want audioStreamEnd", second)
	}
}

func TestSendTextClientContentFrame(t *testing.T) {
	f := newFakeEndpoint(t)
	c := newConnectedClient(t, f)
	f.nextFrame(t) // setup

	if !c.SendText("Start the interview with your greeting.", true) {
		t.Fatal("SendText = false")
	}

	frame := f.nextFrame(t)
	cc, _ := frame["clientContent"].(map[string]any)
	if cc["turnComplete"] != true {
		t.Errorf("turnComplete = %v", cc["turnComplete"])
	}
	turns, _ := cc["turns"].([]any)
	turn, _ := turns[0].(map[string]any)
	if turn["role"] != "user" {
		t.Errorf("role = %v", turn["role"])
	}
}

func TestSendAudioWhileDisconnectedReturnsFalse(t *testing.T) {
	c, err := NewClient(Config{ProjectID: "p"}, StaticTokenProvider("tok"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.SendAudio([]byte{1}, false) {
		t.Error("SendAudio before Connect must return false")
	}
}

func TestInboundAudioChunk(t *testing.T) {
	f := newFakeEndpoint(t)
	c := newConnectedClient(t, f)
	f.nextFrame(t) // setup

	pcm := []byte("model speech")
	f.outbound <- map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []map[string]any{{
					"inlineData": map[string]string{
						"mimeType": "audio/pcm;rate=24000",
						"data":     base64.StdEncoding.EncodeToString(pcm),
					},
				}},
			},
		},
	}

	select {
	case chunk := <-c.Chunks():
		if string(chunk.Audio) != string(pcm) {
			t.Errorf("audio = %q", chunk.Audio)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no chunk arrived")
	}
}

func TestSetupCompleteAndTextPartsAreSwallowed(t *testing.T) {
	f := newFakeEndpoint(t)
	c := newConnectedClient(t, f)
	f.nextFrame(t) // setup

	f.outbound <- map[string]any{"setupComplete": map[string]any{}}
	f.outbound <- map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []map[string]any{{"text": "thinking out loud"}},
			},
		},
	}

	select {
	case chunk := <-c.Chunks():
		t.Errorf("unexpected chunk %v", chunk)
	case <-time.After(200 * time.Millisecond):
	}
	if err := c.Err(); err != nil {
		t.Errorf("err = %v", err)
	}
}

func TestServerErrorFrameTerminatesStream(t *testing.T) {
	f := newFakeEndpoint(t)
	c := newConnectedClient(t, f)
	f.nextFrame(t) // setup

	f.outbound <- map[string]any{"error": map[string]any{"code": 8, "message": "quota exhausted"}}

	select {
	case _, open := <-c.Chunks():
		if open {
			t.Fatal("chunks must close after a server error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("chunks never closed")
	}
	err := c.Err()
	if err == nil || !strings.Contains(err.Error(), "quota exhausted") {
		t.Errorf("err = %v", err)
	}
	if c.State() != StateError {
		t.Errorf("state = %s", c.State())
	}
}

func TestRemoteNormalCloseIsClean(t *testing.T) {
	f := newFakeEndpoint(t)
	c := newConnectedClient(t, f)
	f.nextFrame(t) // setup

	close(f.outbound)

	select {
	case _, open := <-c.Chunks():
		if open {
			t.Fatal("chunks must close after remote close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("chunks never closed")
	}
	if err := c.Err(); err != nil {
		t.Errorf("err = %v, want nil on a clean close", err)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	f := newFakeEndpoint(t)
	c := newConnectedClient(t, f)
	f.nextFrame(t) // setup

	c.Disconnect()
	c.Disconnect()
	if c.State() != StateDisconnected {
		t.Errorf("state = %s", c.State())
	}
	if err := c.Err(); err != nil {
		t.Errorf("err = %v, want nil after local disconnect", err)
	}
}

func TestStaticTokenProvider(t *testing.T) {
	tok, err := StaticTokenProvider("abc").Token(context.Background())
	if err != nil || tok != "abc" {
		t.Errorf("Token = %q, %v", tok, err)
	}
}
