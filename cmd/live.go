package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bosley/coach/audio"
	libascli "github.com/bosley/coach/client"
	"github.com/bosley/coach/hub"
	"github.com/bosley/coach/session"
	"github.com/bosley/coach/transcript"
	"github.com/spf13/cobra"
)

var (
	livePersona  string
	liveDevice   int
	liveWAV      string
	liveLoop     bool
	livePlay     bool
	liveHTTPAddr string
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Coach a local session from the microphone or a WAV file",
	Long: `live runs one coaching session in this process. Audio comes from the
microphone, or from a WAV file played back in real time with --wav.

Transcript lines are read from stdin as "rep: text" or "counterpart: text".
A counterpart line that follows a rep line completes a turn. "/retry" retries
audio acquisition and "/quality" prints the conversation rubric.`,
	RunE: runLive,
}

func init() {
	rootCmd.AddCommand(liveCmd)

	liveCmd.Flags().StringVarP(&livePersona, "persona", "p", "", "Persona to practice against")
	liveCmd.Flags().IntVarP(&liveDevice, "device", "d", 0, "Audio input device ID to use")
	liveCmd.Flags().StringVar(&liveWAV, "wav", "", "Use a WAV file instead of the microphone")
	liveCmd.Flags().BoolVar(&liveLoop, "loop", false, "Loop the WAV file")
	liveCmd.Flags().BoolVar(&livePlay, "play", false, "Play the WAV file through the speakers while scoring it")
	liveCmd.Flags().StringVar(&liveHTTPAddr, "http", "", "Also serve the HTTP API on this address")
}

func runLive(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	catalog, err := loadCatalog(ctx)
	if err != nil {
		return err
	}
	p, err := catalog.Get(livePersona)
	if err != nil {
		return err
	}

	var (
		source audio.FrameSource
		clip   *audio.Clip
	)
	if liveWAV != "" {
		clip, err = audio.LoadWAV(liveWAV)
		if err != nil {
			return err
		}
		source = audio.NewClipSource(clip, audio.DefaultFrameSize, liveLoop)
	} else {
		source = libascli.NewMicSource(liveDevice, nil)
	}

	out := &console{w: cmd.OutOrStdout()}
	pub := publishers{out}

	registry := session.NewRegistry()
	if liveHTTPAddr != "" {
		h := hub.New(registry, catalog, cfg.Session)
		pub = append(pub, h)
		go func() {
			if err := h.Run(ctx, hub.Config{Addr: liveHTTPAddr}); err != nil {
				slog.Error("HTTP API stopped", "error", err)
			}
		}()
	}

	sess := session.New(cfg.Session, p, source, pub)
	registry.Add(sess)
	defer registry.Remove(sess.ID())

	if err := sess.Start(ctx); err != nil {
		if !errors.Is(err, session.ErrAudioUnavailable) {
			return err
		}
		slog.Warn("Audio unavailable, scoring text only; type /retry to try again", "error", err)
	}
	fmt.Fprintf(out.w, "Session %s with %s (%s)\n", sess.ID(), p.Name, p.ID)

	if clip != nil && livePlay {
		go func() {
			if err := libascli.PlayClip(ctx, clip); err != nil {
				slog.Error("Failed to play audio file", "error", err)
			}
		}()
	}

	go readTranscript(ctx, cmd.InOrStdin(), sess, out)

	<-ctx.Done()

	sum := sess.Stop()
	fmt.Fprintf(out.w, "Session ended after %d turns, %d transcript entries, outcome %s/%s\n",
		sum.Turns, sum.Entries, sum.State.Phase, sum.State.Result)
	out.quality(sum.Quality)
	return nil
}

// readTranscript feeds stdin lines into the session until EOF or ctx is done.
func readTranscript(ctx context.Context, in io.Reader, sess *session.Session, out *console) {
	scanner := bufio.NewScanner(in)
	var pendingRep string

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/retry":
			if err := sess.RetryAudio(ctx); err != nil {
				slog.Error("Audio retry failed", "error", err)
			}
			continue
		case "/quality":
			out.quality(sess.Quality())
			continue
		}

		label, text, ok := strings.Cut(line, ":")
		if !ok {
			slog.Warn("Expected \"speaker: text\"", "line", line)
			continue
		}
		speaker, err := transcript.ParseSpeaker(label)
		if err != nil {
			slog.Warn("Unknown speaker", "error", err)
			continue
		}
		text = strings.TrimSpace(text)

		if _, err := sess.Append(transcript.Entry{Speaker: speaker, Text: text}); err != nil {
			slog.Error("Failed to append transcript entry", "error", err)
			continue
		}

		switch speaker {
		case transcript.Rep:
			pendingRep = strings.TrimSpace(pendingRep + " " + text)
		case transcript.Counterpart:
			if pendingRep != "" {
				out.turn(sess.ObserveTurn(pendingRep, text))
				pendingRep = ""
			}
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("Failed to read transcript input", "error", err)
	}
}
