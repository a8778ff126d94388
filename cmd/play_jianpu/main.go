package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/cbegin/jianpu-go"
	"github.com/cbegin/jianpu-go/internal/chat"
	"github.com/cbegin/jianpu-go/internal/config"
	"github.com/cbegin/jianpu-go/internal/midiout"
	"github.com/cbegin/jianpu-go/internal/notation"
	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

const (
	defaultPhrase      = "1 2 3 5 6 5 3 2 1"
	sentryFlushTimeout = 2 * time.Second
	unlockTimeout      = 5 * time.Second
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "reading .env:", err)
	}
	cfg := config.Load()

	var (
		sampleRate  = flag.Int("sample-rate", cfg.SampleRate, "output sample rate")
		backendName = flag.String("backend", cfg.Backend, "sound backend: synth|soundfont|midi")
		sf2Path     = flag.String("sf2", cfg.SoundFont, "SoundFont file for the soundfont backend")
		midiPort    = flag.Int("midi-port", cfg.MIDIPort, "MIDI output port number for the midi backend")
		phrase      = flag.String("phrase", "", "inline numbered notation")
		phrasePath  = flag.String("file", "", "path to a numbered notation file")
		instrument  = flag.String("instrument", cfg.Instrument, "instrument: "+strings.Join(jianpu.Instruments(), "|"))
		bpm         = flag.Float64("bpm", cfg.BPM, "tempo in beats per minute")
		noteLen     = flag.Float64("note-len", cfg.NoteLen, "beats per note")
		styleName   = flag.String("style", cfg.Style, "rhythm style: straight|accented|swing")
		accompName  = flag.String("accompaniment", cfg.Accompaniment, "accompaniment: none|alberti|backbeat")
		volume      = flag.Float64("volume", cfg.Volume, "master volume scalar")
		wavPath     = flag.String("wav", "", "render offline to this WAV file instead of playing")
		chatMode    = flag.Bool("chat", false, "read chat messages from stdin, one per line")
		echo        = flag.Bool("echo", false, "print the phrase with pitches written back as notation")
		verbose     = flag.Bool("v", false, "print every trigger")
		logLevel    = flag.String("log-level", cfg.LogLevel, "log level: debug|info|warn|error")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "jianpu",
	})
	if lvl, err := log.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warn("unknown log level, using info", "level", *logLevel)
	}
	log.SetDefault(logger)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Release:     "jianpu@" + releaseVersion,
			Debug:       !cfg.IsProduction(),
		}); err != nil {
			logger.Warn("sentry init failed", "err", err)
		} else {
			defer sentry.Flush(sentryFlushTimeout)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = log.WithContext(ctx, logger)

	if err := run(ctx, options{
		sampleRate: *sampleRate,
		backend:    *backendName,
		sf2Path:    *sf2Path,
		midiPort:   *midiPort,
		phrase:     *phrase,
		phrasePath: *phrasePath,
		wavPath:    *wavPath,
		chat:       *chatMode,
		echo:       *echo,
		verbose:    *verbose,
		volume:     *volume,
		instrument: *instrument,
		bpm:        *bpm,
		noteLen:    *noteLen,
		style:      *styleName,
		accomp:     *accompName,
	}); err != nil {
		sentry.CaptureException(err)
		logger.Error("play failed", "err", err)
		sentry.Flush(sentryFlushTimeout)
		os.Exit(1)
	}
}

type options struct {
	sampleRate int
	backend    string
	sf2Path    string
	midiPort   int
	phrase     string
	phrasePath string
	wavPath    string
	chat       bool
	echo       bool
	verbose    bool
	volume     float64
	instrument string
	bpm        float64
	noteLen    float64
	style      string
	accomp     string
}

func run(ctx context.Context, o options) error {
	logger := log.FromContext(ctx)
	defaults, err := buildDefaults(o)
	if err != nil {
		return err
	}

	if !o.chat {
		text, err := resolvePhraseInput(o.phrasePath, o.phrase)
		if err != nil {
			return err
		}
		defaults.Phrase = text
		if o.echo {
			fmt.Println(echoPhrase(text))
		}
		if o.wavPath != "" {
			return renderWAV(o.wavPath, defaults, o.sampleRate)
		}
	}

	backend, err := jianpu.ParseBackend(o.backend)
	if err != nil {
		return err
	}
	opts := []jianpu.PlayerOption{jianpu.WithDefaults(defaults)}
	switch backend {
	case jianpu.BackendSoundFont:
		opts = append(opts, jianpu.WithSoundFont(o.sf2Path))
	case jianpu.BackendMIDI:
		port, err := midiout.Open(o.midiPort)
		if err != nil {
			return err
		}
		defer func() {
			if err := port.Close(); err != nil {
				logger.Warn("closing MIDI port", "err", err)
			}
			midi.CloseDriver()
		}()
		opts = append(opts, jianpu.WithMIDISender(port.Send))
	}

	pl, err := jianpu.NewPlayer(o.sampleRate, opts...)
	if err != nil {
		return err
	}
	defer pl.Close()
	pl.SetMasterVolume(o.volume)
	go printEvents(pl.Watch(), o.verbose)

	if o.chat {
		return runChat(ctx, pl, os.Stdin)
	}

	pb, err := pl.PlayPhrase(ctx, defaults.Phrase)
	if err != nil {
		return err
	}
	logger.Info("playing", "playback", pb.ID, "instrument", pb.Request.Instrument, "notes", pb.Notes, "skipped", pb.Skipped)
	select {
	case <-pb.Done():
	case <-ctx.Done():
		return nil
	}
	pl.Wait()
	fmt.Println("playback completed")
	return nil
}

func buildDefaults(o options) (jianpu.Request, error) {
	style, err := jianpu.ParseStyle(o.style)
	if err != nil {
		return jianpu.Request{}, err
	}
	acc, err := jianpu.ParseAccompaniment(o.accomp)
	if err != nil {
		return jianpu.Request{}, err
	}
	return jianpu.Request{
		BPM:           o.bpm,
		NoteBeats:     o.noteLen,
		Instrument:    o.instrument,
		Style:         style,
		Accompaniment: acc,
	}, nil
}

// runChat treats each stdin line as a chat message. Audio is unlocked
// up front; a queued request plays as soon as the clock starts.
func runChat(ctx context.Context, pl *jianpu.Player, in io.Reader) error {
	logger := log.FromContext(ctx)
	session := jianpu.NewSession("")

	tryUnlock(ctx, pl, session)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				pl.Wait()
				return nil
			}
			n++
			line = strings.ReplaceAll(line, `\n`, "\n")
			msg := jianpu.Message{ID: strconv.Itoa(n), Channel: "stdin", Text: line}
			if !session.Unlocked() {
				tryUnlock(ctx, pl, session)
			}
			pb, err := pl.HandleMessage(ctx, session, msg)
			if err != nil {
				logger.Warn("message ignored", "id", msg.ID, "err", err)
				continue
			}
			if pb != nil {
				fmt.Println(chat.Describe(pb.Request))
			}
		}
	}
}

// tryUnlock stands in for a user gesture. A failure leaves requests queued
// for the next attempt.
func tryUnlock(ctx context.Context, pl *jianpu.Player, session *jianpu.Session) {
	ctx, cancel := context.WithTimeout(ctx, unlockTimeout)
	defer cancel()
	pb, err := pl.Unlock(ctx, session)
	if err != nil {
		log.FromContext(ctx).Warn("audio not unlocked, requests will queue", "err", err)
		return
	}
	if pb != nil {
		fmt.Println(chat.Describe(pb.Request))
	}
}

func printEvents(ch <-chan jianpu.PlaybackEvent, verbose bool) {
	for ev := range ch {
		switch ev.Kind {
		case jianpu.EventTriggered:
			if verbose {
				role := "melody"
				if ev.Accompaniment {
					role = "accomp"
				}
				fmt.Printf("%-6s %-6s key=%d %s t=%.3f dur=%.3f vel=%.2f\n", role, ev.Token, ev.Key, ev.Note, ev.Start, ev.Duration, ev.Velocity)
			}
		case jianpu.EventSkipped:
			fmt.Printf("skipped token %d %q\n", ev.Index, ev.Token)
		case jianpu.EventTriggerFailed:
			fmt.Printf("trigger %q failed: %v\n", ev.Token, ev.Err)
		}
	}
}

func renderWAV(path string, req jianpu.Request, sampleRate int) error {
	samples, err := jianpu.RenderRequest(req, sampleRate)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, jianpu.EncodeWAVFloat32LE(samples, sampleRate, 2), 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%.2fs)\n", path, float64(len(samples)/2)/float64(sampleRate))
	return nil
}

// echoPhrase writes back each token as parsed, "?" for tokens that do not
// parse.
func echoPhrase(text string) string {
	tokens, pitches, ok := notation.NewParser(notation.DefaultConfig()).Parse(text)
	out := make([]string, len(tokens))
	for i := range tokens {
		if !ok[i] {
			out[i] = "?"
			continue
		}
		out[i] = notation.FormatPitch(pitches[i].Pitch, notation.ReferencePitch)
	}
	return strings.Join(out, " ")
}

func resolvePhraseInput(path string, inline string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return defaultPhrase, nil
}
