package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skillforge/interview-gateway/pkg/interview"
	"github.com/skillforge/interview-gateway/pkg/speech"
	"github.com/skillforge/interview-gateway/pkg/storage/memory"
)

type audioCall struct {
	data      []byte
	endOfTurn bool
}

type fakeSpeech struct {
	mu         sync.Mutex
	connectErr error
	prompt     string
	audio      []audioCall
	texts      []string
	chunks     chan speech.Chunk
	closeOnce  sync.Once
	err        error
}

func newFakeSpeech() *fakeSpeech {
	return &fakeSpeech{chunks: make(chan speech.Chunk, 16)}
}

func (f *fakeSpeech) Connect(_ context.Context, systemPrompt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompt = systemPrompt
	return f.connectErr
}

func (f *fakeSpeech) SendAudio(data []byte, endOfTurn bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.audio = append(f.audio, audioCall{data: cp, endOfTurn: endOfTurn})
	return true
}

func (f *fakeSpeech) SendText(text string, _ bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return true
}

func (f *fakeSpeech) Chunks() <-chan speech.Chunk { return f.chunks }

func (f *fakeSpeech) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Disconnect closes the chunk stream the way the real client's read loop
// does, so the session's drain goroutine can finish.
func (f *fakeSpeech) Disconnect() {
	f.closeOnce.Do(func() { close(f.chunks) })
}

func (f *fakeSpeech) audioCalls() []audioCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]audioCall, len(f.audio))
	copy(out, f.audio)
	return out
}

type fakeRelay struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRelay) SendAudio(_ context.Context, _ string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

type harness struct {
	svc    *interview.Service
	sess   interview.Session
	speech *fakeSpeech
	relay  *fakeRelay
	client *websocket.Conn
	runErr chan error
}

func startHarness(t *testing.T, sp *fakeSpeech, relay *fakeRelay, withAvatar bool) *harness {
	t.Helper()

	svc := interview.NewService(interview.ServiceConfig{
		Store:  memory.New(),
		Logger: slog.New(slog.NewTextHandler(testWriter{t}, nil)),
	})
	sess, err := svc.Start(context.Background(), interview.StartParams{Topic: "Go"})
	if err != nil {
		t.Fatal(err)
	}
	if withAvatar {
		sess.ConversationURL = "https://rooms.example/abc"
		sess.AvatarConversationID = "c-1"
	}

	runErr := make(chan error, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		live := New(ws, sess, Config{PingInterval: 50 * time.Millisecond}, Deps{
			Registry: svc,
			Speech:   sp,
			Avatar:   relay,
			Logger:   slog.New(slog.NewTextHandler(testWriter{t}, nil)),
		})
		runErr <- live.Run(r.Context())
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	return &harness{svc: svc, sess: sess, speech: sp, relay: relay, client: client, runErr: runErr}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

type frame struct {
	Type       string  `json:"type"`
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Error      string  `json:"error"`
	URL        *string `json:"url"`
	Audio      string  `json:"audio"`
	Format     string  `json:"format"`
	SampleRate int     `json:"sample_rate"`
}

func (h *harness) readFrame(t *testing.T) frame {
	t.Helper()
	_ = h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := h.client.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("frame %s: %v", data, err)
	}
	return f
}

// waitFrame reads until a frame of the wanted type arrives, skipping
// interleaved status frames.
func (h *harness) waitFrame(t *testing.T, typ string) frame {
	t.Helper()
	for i := 0; i < 20; i++ {
		f := h.readFrame(t)
		if f.Type == typ {
			return f
		}
	}
	t.Fatalf("no %q frame arrived", typ)
	return frame{}
}

func TestRunSendsConnectedAndAvatarFrames(t *testing.T) {
	h := startHarness(t, newFakeSpeech(), nil, true)

	first := h.readFrame(t)
	if first.Type != "status" || first.Status != "connected" {
		t.Fatalf("first frame = %+v, want connected status", first)
	}
	av := h.waitFrame(t, "avatar")
	if av.Status != "ready" || av.URL == nil || *av.URL != "https://rooms.example/abc" {
		t.Errorf("avatar frame = %+v", av)
	}

	got, err := h.svc.Status(context.Background(), h.sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != interview.StatusInProgress {
		t.Errorf("status = %s, want in_progress once the stream is live", got.Status)
	}
}

func TestRunAudioOnlySendsUnavailableAvatar(t *testing.T) {
	h := startHarness(t, newFakeSpeech(), nil, false)
	av := h.waitFrame(t, "avatar")
	if av.Status != "unavailable" || av.URL != nil {
		t.Errorf("avatar frame = %+v, want unavailable with null url", av)
	}
}

func TestRunSendsGreetingKickoff(t *testing.T) {
	sp := newFakeSpeech()
	h := startHarness(t, sp, nil, false)
	h.waitFrame(t, "avatar")

	sp.mu.Lock()
	texts := append([]string(nil), sp.texts...)
	sp.mu.Unlock()
	if len(texts) != 1 || texts[0] != "Start the interview with your greeting." {
		t.Errorf("greeting texts = %v", texts)
	}
}

func TestBinaryFramesForwardToSpeech(t *testing.T) {
	sp := newFakeSpeech()
	h := startHarness(t, sp, nil, false)
	h.waitFrame(t, "avatar")

	pcm := []byte{1, 2, 3, 4}
	if err := h.client.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		calls := sp.audioCalls()
		if len(calls) == 1 {
			if string(calls[0].data) != string(pcm) || calls[0].endOfTurn {
				t.Errorf("call = %+v", calls[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("audio never reached the speech connection")
}

func TestEndTurnForwardsExactlyOnce(t *testing.T) {
	sp := newFakeSpeech()
	h := startHarness(t, sp, nil, false)
	h.waitFrame(t, "avatar")

	if err := h.client.WriteMessage(websocket.TextMessage, []byte(`{"type":"end_turn"}`)); err != nil {
		t.Fatal(err)
	}

	f := h.waitFrame(t, "status")
	if f.Status != "processing" {
		t.Errorf("status = %q, want processing", f.Status)
	}

	calls := sp.audioCalls()
	if len(calls) != 1 {
		t.Fatalf("audio calls = %d, want exactly one end-of-turn call", len(calls))
	}
	if !calls[0].endOfTurn || len(calls[0].data) != 0 {
		t.Errorf("call = %+v, want empty end-of-turn", calls[0])
	}
}

func TestPingGetsPong(t *testing.T) {
	h := startHarness(t, newFakeSpeech(), nil, false)
	h.waitFrame(t, "avatar")

	if err := h.client.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	h.waitFrame(t, "pong")
}

func TestMalformedControlFrameYieldsErrorFrame(t *testing.T) {
	h := startHarness(t, newFakeSpeech(), nil, false)
	h.waitFrame(t, "avatar")

	if err := h.client.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)); err != nil {
		t.Fatal(err)
	}
	f := h.waitFrame(t, "error")
	if f.Error == "" {
		t.Error("error frame must carry a message")
	}
}

func TestModelChunkReachesClientAvatarAndTranscript(t *testing.T) {
	sp := newFakeSpeech()
	relay := &fakeRelay{}
	h := startHarness(t, sp, relay, true)
	h.waitFrame(t, "avatar")

	pcm := []byte("model audio bytes")
	sp.chunks <- speech.Chunk{Audio: pcm}

	audio := h.waitFrame(t, "audio")
	if audio.Format != "pcm" || audio.SampleRate != 24000 {
		t.Errorf("audio frame = %+v", audio)
	}
	decoded, err := base64.StdEncoding.DecodeString(audio.Audio)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(pcm) {
		t.Errorf("audio payload = %q", decoded)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := h.svc.Entries(context.Background(), h.sess.ID)
		if err != nil {
			t.Fatal(err)
		}
		relay.mu.Lock()
		relayed := relay.calls
		relay.mu.Unlock()
		if len(entries) == 1 && relayed == 1 {
			if entries[0].Speaker != interview.SpeakerAI {
				t.Errorf("speaker = %s", entries[0].Speaker)
			}
			if string(entries[0].AudioSample) != string(pcm) {
				t.Errorf("sample = %q", entries[0].AudioSample)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("chunk never reached transcript and avatar relay")
}

func TestSpeechFailureMarksSessionError(t *testing.T) {
	sp := newFakeSpeech()
	h := startHarness(t, sp, nil, false)
	h.waitFrame(t, "avatar")

	sp.mu.Lock()
	sp.err = errors.New("upstream gone")
	sp.mu.Unlock()
	sp.Disconnect()

	f := h.waitFrame(t, "error")
	if f.Error != "Lost connection to AI" {
		t.Errorf("error = %q", f.Error)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := h.svc.Status(context.Background(), h.sess.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == interview.StatusError {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session never flipped to error")
}

func TestConnectFailureSendsErrorAndMarksSession(t *testing.T) {
	sp := newFakeSpeech()
	sp.connectErr = errors.New("dial refused")
	h := startHarness(t, sp, nil, false)

	f := h.readFrame(t)
	if f.Type != "error" || f.Error != "Failed to connect to interviewer" {
		t.Fatalf("frame = %+v", f)
	}

	select {
	case err := <-h.runErr:
		if err == nil {
			t.Error("Run must report the connect failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	got, err := h.svc.Status(context.Background(), h.sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != interview.StatusError {
		t.Errorf("status = %s, want error", got.Status)
	}
}

func TestClientCloseEndsRunCleanly(t *testing.T) {
	h := startHarness(t, newFakeSpeech(), nil, false)
	h.waitFrame(t, "avatar")

	_ = h.client.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))

	select {
	case err := <-h.runErr:
		if err != nil {
			t.Errorf("Run = %v, want nil on normal close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after client close")
	}
}
