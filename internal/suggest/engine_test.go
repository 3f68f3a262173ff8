package suggest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"parley/internal/chat"
	"parley/internal/tts"
)

type fakeGenerator struct {
	reply      string
	err        error
	calls      int
	lastPrompt string
}

func (f *fakeGenerator) Generate(_ context.Context, utterance, _, _ string) (string, error) {
	f.calls++
	f.lastPrompt = utterance
	return f.reply, f.err
}

type fakeTranslator struct {
	result string
	err    error
	calls  int
}

func (f *fakeTranslator) Translate(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.result, f.err
}

type fakeSynth struct {
	res      tts.Resolution
	err      error
	knownURL string
}

func (f *fakeSynth) Synthesize(_ context.Context, _, _, knownURL string) (tts.Resolution, error) {
	f.knownURL = knownURL
	return f.res, f.err
}

type fakePersister struct {
	patches []chat.SuggestionPatch
	stored  chat.SuggestionState
	putErr  error
	getErr  error
}

func (f *fakePersister) PutSuggestion(_ context.Context, _ string, patch chat.SuggestionPatch) error {
	f.patches = append(f.patches, patch)
	return f.putErr
}

func (f *fakePersister) GetSuggestion(_ context.Context, _ string) (chat.SuggestionState, error) {
	return f.stored, f.getErr
}

func newTestEngine(g *fakeGenerator, tr *fakeTranslator, s *fakeSynth, p *fakePersister) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(logger, g, tr, s, p, "en")
}

func TestRefreshPersistsFreshStateAndClearsStaleFields(t *testing.T) {
	gen := &fakeGenerator{reply: `"Me gusta el café."`}
	p := &fakePersister{}
	engine := newTestEngine(gen, &fakeTranslator{}, &fakeSynth{}, p)

	outcome, ok := engine.Refresh(context.Background(), "¿Te gusta el café?", "c-1", "mistral")
	require.True(t, ok)
	require.True(t, outcome.Committed)
	require.Equal(t, "Me gusta el café.", outcome.State.Latest)
	require.Contains(t, gen.lastPrompt, "¿Te gusta el café?")

	require.Len(t, p.patches, 1)
	patch := p.patches[0]
	require.Equal(t, "Me gusta el café.", *patch.Latest)
	// Translation and audio are stale relative to the new text and must be
	// explicitly cleared, not left unspecified.
	require.NotNil(t, patch.Translation)
	require.Empty(t, *patch.Translation)
	require.NotNil(t, patch.AudioURL)
	require.Empty(t, *patch.AudioURL)
}

func TestRefreshFailureIsSilent(t *testing.T) {
	engine := newTestEngine(&fakeGenerator{err: errors.New("boom")}, &fakeTranslator{}, &fakeSynth{}, &fakePersister{})

	_, ok := engine.Refresh(context.Background(), "Hi", "c-1", "mistral")
	require.False(t, ok)

	_, ok = engine.Refresh(context.Background(), "", "c-1", "mistral")
	require.False(t, ok)

	_, ok = engine.Refresh(context.Background(), "Hi", "null", "mistral")
	require.False(t, ok)
}

func TestRefreshUncommittedWhenPersistFails(t *testing.T) {
	p := &fakePersister{putErr: errors.New("store down")}
	engine := newTestEngine(&fakeGenerator{reply: "Sounds good."}, &fakeTranslator{}, &fakeSynth{}, p)

	outcome, ok := engine.Refresh(context.Background(), "Hi", "c-1", "mistral")
	require.True(t, ok)
	require.False(t, outcome.Committed)
	require.Equal(t, "Sounds good.", outcome.State.Latest)
}

func TestTranslateFetchesOnceThenToggles(t *testing.T) {
	tr := &fakeTranslator{result: "Hello."}
	p := &fakePersister{}
	engine := newTestEngine(&fakeGenerator{reply: "Hola."}, tr, &fakeSynth{}, p)

	_, ok := engine.Refresh(context.Background(), "¿Qué tal?", "c-1", "mistral")
	require.True(t, ok)

	outcome, err := engine.Translate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Hello.", outcome.State.Translation)
	require.Equal(t, 1, tr.calls)

	_, show := engine.State()
	require.True(t, show)

	// Second request must not hit the endpoint again; it only toggles.
	_, err = engine.Translate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, tr.calls)
	_, show = engine.State()
	require.False(t, show)

	_, err = engine.Translate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, tr.calls)
	_, show = engine.State()
	require.True(t, show)
}

func TestTranslateWithoutSuggestion(t *testing.T) {
	engine := newTestEngine(&fakeGenerator{}, &fakeTranslator{}, &fakeSynth{}, &fakePersister{})

	_, err := engine.Translate(context.Background())
	require.True(t, chat.IsKind(err, chat.KindValidation))
}

func TestAudioSynthesizesOnceThenReusesURL(t *testing.T) {
	synth := &fakeSynth{res: tts.Resolution{URL: "/audio/s.mp3", Data: []byte("a")}}
	p := &fakePersister{}
	engine := newTestEngine(&fakeGenerator{reply: "Hola."}, &fakeTranslator{}, synth, p)

	_, ok := engine.Refresh(context.Background(), "¿Qué tal?", "c-1", "mistral")
	require.True(t, ok)
	patchesAfterRefresh := len(p.patches)

	res, outcome, err := engine.Audio(context.Background(), "gtts")
	require.NoError(t, err)
	require.Equal(t, "/audio/s.mp3", res.URL)
	require.True(t, outcome.Committed)
	require.Empty(t, synth.knownURL)
	require.Len(t, p.patches, patchesAfterRefresh+1)

	// The stored URL now short-circuits; no new patch is written.
	_, _, err = engine.Audio(context.Background(), "gtts")
	require.NoError(t, err)
	require.Equal(t, "/audio/s.mp3", synth.knownURL)
	require.Len(t, p.patches, patchesAfterRefresh+1)
}

func TestRehydrateLoadsStoredState(t *testing.T) {
	p := &fakePersister{stored: chat.SuggestionState{Latest: "Try this.", Translation: "Prueba esto."}}
	engine := newTestEngine(&fakeGenerator{}, &fakeTranslator{}, &fakeSynth{}, p)

	engine.Rehydrate(context.Background(), "c-9")
	state, show := engine.State()
	require.Equal(t, "Try this.", state.Latest)
	require.Equal(t, "Prueba esto.", state.Translation)
	require.False(t, show)

	// Switching to no conversation clears the mirror.
	engine.Rehydrate(context.Background(), "")
	state, _ = engine.State()
	require.Empty(t, state.Latest)
}
