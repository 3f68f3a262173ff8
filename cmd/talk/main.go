// Command talk is a terminal voice client: record or type an utterance, hear
// and read the assistant's reply, and follow the suggested response.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"parley/internal/api"
	"parley/internal/audio"
	"parley/internal/chat"
	"parley/internal/config"
	"parley/internal/llm"
	"parley/internal/orchestrator"
	"parley/internal/store"
	"parley/internal/stt"
	"parley/internal/suggest"
	"parley/internal/tts"
	"parley/internal/words"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if err := run(logger); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	apiClient := api.NewClient(logger, cfg.APIBaseURL, cfg.APIToken, nil)

	methods, err := apiClient.Methods(ctx)
	if err != nil {
		logger.Warn("could not fetch enabled methods, proceeding unrestricted", slog.String("error", err.Error()))
		methods = chat.MethodSet{}
	}

	sttClient := stt.NewClient(logger, apiClient, methods)
	llmClient := llm.NewClient(logger, apiClient, methods)
	ttsClient := tts.NewClient(logger, apiClient, methods)
	storeClient := store.NewClient(logger, apiClient)
	wordsClient := words.NewClient(logger, apiClient, cfg.DictionarySource, 0)
	engine := suggest.NewEngine(logger, llmClient, wordsClient, ttsClient, storeClient, cfg.TargetLang)

	orch := orchestrator.New(orchestrator.Deps{
		Logger:      logger,
		Transcriber: sttClient,
		Generator:   llmClient,
		Synthesizer: ttsClient,
		Store:       storeClient,
		Suggestions: engine,
		Methods:     methods,
		Selection: orchestrator.Selection{
			STT:        cfg.STTMethod,
			Generation: cfg.GenerationMethod,
			TTS:        cfg.TTSMethod,
		},
	})

	capture, err := audio.NewCapture()
	if err != nil {
		return err
	}
	defer capture.Close()

	player := audio.NewPlayer("")
	defer player.Close()

	events, cancel := orch.Subscribe()
	defer cancel()
	go printSuggestions(events)

	fmt.Println("parley: type to chat, :rec to record, :play N to replay a turn, :quit to exit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == ":quit":
			return nil
		case line == ":rec":
			if err := recordTurn(ctx, orch, capture, player, scanner); err != nil {
				fmt.Println("!", err)
			}
		case strings.HasPrefix(line, ":play "):
			var index int
			if _, err := fmt.Sscanf(line, ":play %d", &index); err != nil {
				fmt.Println("! usage: :play N")
				continue
			}
			res, err := orch.PlayTurn(ctx, index)
			if err != nil {
				fmt.Println("!", err)
				continue
			}
			savePlayable(player, res)
		default:
			result, err := orch.Send(ctx, line)
			if err != nil {
				fmt.Println("!", err)
			}
			printTurn(player, result)
		}
	}
}

func recordTurn(ctx context.Context, orch *orchestrator.Orchestrator, capture *audio.Capture, player *audio.Player, scanner *bufio.Scanner) error {
	if err := capture.Start(); err != nil {
		return err
	}
	fmt.Print("recording… press enter to stop ")
	scanner.Scan()
	blob := capture.Stop()

	result, err := orch.SendAudio(ctx, blob, audio.ContentType)
	if err != nil {
		if fallback := stt.FallbackText(err); result.Turn.User == "" && fallback != "" {
			fmt.Println(fallback)
			return nil
		}
		fmt.Println("!", err)
	}
	printTurn(player, result)
	return nil
}

func printTurn(player *audio.Player, result orchestrator.TurnResult) {
	if result.Turn.User == "" && result.Turn.AI == "" {
		return
	}
	fmt.Printf("you: %s\nassistant: %s\n", result.Turn.User, result.Turn.AI)
	if result.Audio != nil {
		savePlayable(player, *result.Audio)
	}
}

func savePlayable(player *audio.Player, res tts.Resolution) {
	if len(res.Data) == 0 {
		return
	}
	ext := filepath.Ext(res.Filename)
	path, err := player.Write(res.Data, ext)
	if err != nil {
		fmt.Println("!", err)
		return
	}
	fmt.Println("audio:", path)
}

func printSuggestions(events <-chan orchestrator.Event) {
	for ev := range events {
		if ev.Kind == orchestrator.EventSuggestion && ev.Suggestion != nil && ev.Suggestion.Latest != "" {
			fmt.Printf("\n(try saying: %s)\n> ", ev.Suggestion.Latest)
		}
	}
}
