package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bosley/coach/audio"
	"github.com/bosley/coach/persona"
	"github.com/bosley/coach/session"
	"github.com/bosley/coach/transcript"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	replayWAV        string
	replayTranscript string
	replayPersona    string
	replayJSON       bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Score a recorded conversation offline",
	Long: `replay runs a WAV recording and/or a JSONL transcript through the engines
on a simulated clock and prints the score timeline, the turns, the outcome and
the conversation rubric.

Each transcript line is {"speaker": "rep", "text": "...", "offset": 1.5} with
offset in seconds from the start of the recording, or an RFC 3339 "timestamp".
Absolute timestamps are replayed relative to the earliest of them.`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVar(&replayWAV, "wav", "", "WAV recording of the rep")
	replayCmd.Flags().StringVarP(&replayTranscript, "transcript", "t", "", "JSONL transcript")
	replayCmd.Flags().StringVarP(&replayPersona, "persona", "p", "", "Persona the conversation was held with")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print the report as JSON")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if replayWAV == "" && replayTranscript == "" {
		return fmt.Errorf("nothing to replay: pass --wav and/or --transcript")
	}

	catalog, err := persona.NewCatalog(cfg.Personas.Dir)
	if err != nil {
		return fmt.Errorf("failed to load personas: %w", err)
	}
	p, err := catalog.Get(replayPersona)
	if err != nil {
		return err
	}

	var clip *audio.Clip
	if replayWAV != "" {
		if clip, err = audio.LoadWAV(replayWAV); err != nil {
			return err
		}
	}

	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	var entries []transcript.Entry
	if replayTranscript != "" {
		f, err := os.Open(replayTranscript)
		if err != nil {
			return fmt.Errorf("failed to open transcript: %w", err)
		}
		entries, err = transcript.ReadJSONLAligned(f, start)
		f.Close()
		if err != nil {
			return err
		}
	}

	rep := session.Replay(cfg.Session, p, clip, entries, start)

	w := cmd.OutOrStdout()
	if replayJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	out := &console{w: w}
	for _, pt := range rep.Timeline {
		if pt.Energy != nil {
			out.PublishEnergy(uuid.Nil, *pt.Energy)
		}
		if pt.Sentiment != nil {
			out.PublishSentiment(uuid.Nil, *pt.Sentiment)
		}
	}
	for _, res := range rep.Turns {
		out.turn(res)
	}
	fmt.Fprintf(w, "outcome %s/%s, success criteria met: %t\n", rep.State.Phase, rep.State.Result, rep.Success)
	out.quality(rep.Quality)
	return nil
}
