// Command agent is the real-time speech capture and structuring pipeline's
// CLI entrypoint: it loads config, wires C1-C7 together, drives the audio
// source, and persists the session JSON on shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"

	"github.com/yujixr/stream-scribe/internal/asr"
	"github.com/yujixr/stream-scribe/internal/audiosource"
	"github.com/yujixr/stream-scribe/internal/bus"
	"github.com/yujixr/stream-scribe/internal/config"
	"github.com/yujixr/stream-scribe/internal/logging"
	"github.com/yujixr/stream-scribe/internal/session"
	"github.com/yujixr/stream-scribe/internal/summarizer"
	"github.com/yujixr/stream-scribe/internal/vad"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	listDevices := flag.Bool("list-devices", false, "list input devices and exit")
	deviceArg := flag.String("device", "", "capture device id (see --list-devices)")
	filePath := flag.String("file", "", "transcribe a WAV file instead of the microphone")
	noSummary := flag.Bool("no-summary", false, "disable the summarizer worker")
	flag.Parse()

	if *listDevices {
		return printDevices()
	}

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "note: no .env file found, using system environment variables")
	}

	cfg, err := config.Load(".")
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := logging.NewSlogLogger(level)

	b := bus.New()
	sess := session.New()

	vadModel, err := loadVADModel(cfg)
	if err != nil {
		return fmt.Errorf("vad model: %w", err)
	}
	defer vadModel.Close()

	source, err := buildSource(cfg, *filePath, *deviceArg)
	if err != nil {
		return err
	}

	preRollChunks := vad.CapacityForPreRoll(cfg.VAD.Detection.PreRollSec*1000, float64(cfg.Core.ChunkMs))
	stream := vad.NewStream(source, vadModel, cfg.VAD.Detection.ToThresholds(), preRollChunks, b, logger)

	engine, err := asr.NewWhisperEngine(cfg.Whisper.Model)
	if err != nil {
		return fmt.Errorf("whisper: %w", err)
	}
	defer engine.Close()
	if err := engine.Warmup(cfg.Core.SampleRate); err != nil {
		logger.Warn("whisper warmup failed, continuing", "error", err)
	}

	filter := asr.NewFilter(cfg.Hallucination.ToFilterConfig())
	shutdownWait := time.Duration(cfg.Whisper.ShutdownTimeoutSec * float64(time.Second))
	asrWorker := asr.NewWorker(engine, filter, cfg.Whisper.ToParamTable(), b, logger, 8, shutdownWait)

	summaryEnabled := cfg.Summary.Enabled && !*noSummary
	var summaryWorker *summarizer.Worker
	if summaryEnabled {
		client, err := buildSummaryClient(cfg)
		if err != nil {
			return err
		}
		summaryWorker = summarizer.NewWorker(client, summarizer.Settings{
			TriggerThreshold:         cfg.Summary.TriggerThreshold,
			SilenceTimeoutSec:        cfg.Summary.SilenceTimeoutSec,
			QueueGetTimeoutSec:       cfg.Audio.QueueGetTimeoutSec,
			RecentSegmentsForContext: cfg.Summary.RecentSegmentsForContext,
			MaxTokens:                cfg.Summary.MaxTokens,
		}, b, logger)
	}

	var summarizerAddSegment func(bus.TranscriptionSegment)
	if summaryWorker != nil {
		summarizerAddSegment = summaryWorker.AddSegment
	}
	sess.RegisterHandlers(b, summarizerAddSegment)
	b.OnAudioRecorded(func(e bus.AudioRecordedEvent) {
		asrWorker.Enqueue(e)
	})
	b.OnMessagePosted(func(e bus.MessagePostedEvent) {
		fmt.Printf("[%s] %s\n", levelLabel(e.Level), e.Message)
	})

	go asrWorker.Run()
	if summaryWorker != nil {
		go summaryWorker.Run()
	}

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start audio stream: %w", err)
	}

	fmt.Printf("stream-scribe listening (sample_rate=%dHz chunk=%dms whisper=%s summary=%v)\n",
		cfg.Core.SampleRate, cfg.Core.ChunkMs, cfg.Whisper.Model, summaryEnabled)
	fmt.Println("press Ctrl+C to stop")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var eof <-chan struct{}
	if !source.IsRealtime() {
		eof = stream.Done()
	}

	select {
	case <-sig:
		logger.Info("signal received, shutting down gracefully (press again to force)")
	case <-eof:
		logger.Info("input exhausted, shutting down gracefully")
	}

	// A second signal while the graceful path is still draining the ASR
	// queue or waiting on the final summary switches to the fast path:
	// running flags flip false immediately and persistence is skipped.
	done := make(chan struct{})
	go func() {
		gracefulShutdown(ctx, cfg, stream, asrWorker, summaryWorker, sess, logger)
		close(done)
	}()

	select {
	case <-done:
	case <-sig:
		logger.Info("second signal received, forcing fast shutdown")
		cancel()
		fastShutdown(asrWorker, summaryWorker)
		<-done
	}
	return nil
}

// fastShutdown stops both workers without running a final summary; run
// cancels the graceful path's context first, which aborts its final-summary
// call and skips persistence. Queued utterances are not dropped: asrWorker.Stop
// still waits up to whisper.shutdown_timeout_sec for the queue to drain, and
// the summarizer's Shutdown waits for a realtime LLM call already in flight.
func fastShutdown(asrWorker *asr.Worker, summaryWorker *summarizer.Worker) {
	asrWorker.Stop()
	if summaryWorker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		summaryWorker.Shutdown(ctx, nil)
	}
}

// gracefulShutdown implements §5's graceful mode: stop the audio stream
// (finalizing any in-progress utterance), drain the ASR queue, run the
// summarizer's final-summary path, then persist the session.
func gracefulShutdown(ctx context.Context, cfg config.Config, stream *vad.Stream, asrWorker *asr.Worker, summaryWorker *summarizer.Worker, sess *session.Session, logger logging.Logger) {
	if err := stream.Stop(); err != nil {
		logger.Warn("audio stream stop error", "error", err)
	}

	asrWorker.Stop()

	if summaryWorker != nil {
		timeout := time.Duration(cfg.Summary.ShutdownTimeoutSec*float64(time.Second)) + 30*time.Second
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		summaryWorker.Shutdown(shutdownCtx, sess)
	}

	if !cfg.App.SaveJSON || ctx.Err() != nil {
		return
	}
	now := time.Now()
	path := session.DefaultFilename(now)
	if err := sess.WriteFile(path, now); err != nil {
		logger.Error("failed to persist session", "error", err)
		return
	}
	fmt.Printf("session written to %s\n", path)
}

func buildSource(cfg config.Config, filePath, deviceArg string) (vad.Source, error) {
	if filePath != "" {
		return audiosource.NewFile(filePath, cfg.Core.SampleRate, false), nil
	}

	var deviceID *malgo.DeviceID
	if deviceArg != "" {
		idx, err := strconv.Atoi(deviceArg)
		if err != nil {
			return nil, fmt.Errorf("--device must be an id from --list-devices, got %q", deviceArg)
		}
		devices, err := audiosource.ListCaptureDevices()
		if err != nil {
			return nil, err
		}
		found := false
		for _, d := range devices {
			if d.Index == idx {
				id := d.ID
				deviceID = &id
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no capture device with id %d (see --list-devices)", idx)
		}
	}
	return audiosource.NewMicrophone(deviceID, cfg.Core.SampleRate), nil
}

func printDevices() error {
	devices, err := audiosource.ListCaptureDevices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		marker := ""
		if d.IsDefault {
			marker = " (default)"
		}
		fmt.Printf("[%d] %s%s\n", d.Index, d.Name, marker)
	}
	return nil
}

// loadVADModel prefers the Silero ONNX model, downloading it to the
// configured cache path if missing; it falls back to the dependency-free
// RMS model when no URL is configured (e.g. tests, --file smoke runs).
func loadVADModel(cfg config.Config) (vad.Model, error) {
	if cfg.VAD.Model.URL == "" {
		return vad.NewRMSModel(0.1), nil
	}
	if err := ensureModelDownloaded(cfg.VAD.Model.URL, cfg.VAD.Model.CachePath); err != nil {
		return nil, err
	}
	return vad.NewSileroModel(cfg.VAD.Model.CachePath)
}

// ensureModelDownloaded fetches url to path if path does not already
// exist. A download failure here is fatal at startup per spec §7.
func ensureModelDownloaded(url, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func buildSummaryClient(cfg config.Config) (summarizer.Client, error) {
	switch cfg.Summary.Backend {
	case "claude":
		return summarizer.NewClaudeClient(cfg.Summary.APIKey, cfg.Summary.Model, cfg.Summary.MaxTokens), nil
	case "vllm":
		return summarizer.NewVLLMClient(cfg.Summary.BaseURL, cfg.Summary.APIKey, cfg.Summary.Model, cfg.Summary.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown summary backend %q", cfg.Summary.Backend)
	}
}

func levelLabel(l bus.MessageLevel) string {
	switch l {
	case bus.LevelSuccess:
		return "OK"
	case bus.LevelWarning:
		return "WARN"
	case bus.LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}
