package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"aramcoach/internal/advice"
	"aramcoach/internal/liveclient"
	"aramcoach/internal/pipeline"
	"aramcoach/internal/server"
)

var (
	advisePatch  string
	adviseFormat string
	adviseAlly   []string
	adviseEnemy  []string
	adviseChamp  string
	adviseTrace  bool
	adviseLive   bool
)

var adviseCmd = &cobra.Command{
	Use:   "advise",
	Short: "Run the pipeline once and print the strategy",
}

var advisePreGameCmd = &cobra.Command{
	Use:     "pregame",
	Short:   "Advice for two team compositions",
	Example: `  coach advise pregame --ally Ahri,Garen --enemy Soraka,Janna`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := pipeline.PreGameRequest{Patch: advisePatch, AllyComp: adviseAlly, EnemyComp: adviseEnemy}
		return runAdvise(cmd, func(a *app, obs pipeline.Observer) (*pipeline.State, error) {
			return a.ctrl.PreGame(cmd.Context(), req, obs)
		})
	},
}

var adviseInGameCmd = &cobra.Command{
	Use:     "ingame [question]",
	Short:   "Answer an in-game question",
	Example: `  coach advise ingame --champ Ziggs --enemy Soraka "how do I deal with sustain?"`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := pipeline.InGameRequest{Patch: advisePatch, MyChamp: adviseChamp, Question: strings.Join(args, " ")}
		if len(adviseEnemy) > 0 || len(adviseAlly) > 0 {
			req.State = map[string]any{"enemy_comp": adviseEnemy, "ally_comp": adviseAlly}
		}
		if adviseLive {
			gs, err := liveclient.NewClient().GameState(cmd.Context())
			if err != nil {
				return err
			}
			if req.MyChamp == "" {
				req.MyChamp = gs.MyChamp
			}
			req.State = map[string]any{"enemy_comp": gs.EnemyComp, "ally_comp": gs.AllyComp}
		}
		return runAdvise(cmd, func(a *app, obs pipeline.Observer) (*pipeline.State, error) {
			return a.ctrl.InGame(cmd.Context(), req, obs)
		})
	},
}

func runAdvise(cmd *cobra.Command, run func(*app, pipeline.Observer) (*pipeline.State, error)) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var obs pipeline.Observer
	if adviseTrace {
		stderr := cmd.ErrOrStderr()
		obs = func(ev pipeline.StageEvent) {
			fmt.Fprintf(stderr, "%-12s loop=%d %s\n", ev.Phase, ev.Loop, ev.Elapsed.Round(time.Millisecond))
		}
	}

	st, runErr := run(a, obs)
	out := cmd.OutOrStdout()
	if runErr == nil && st.Succeeded() {
		return printStrategy(out, adviseFormat, st.Final)
	}

	status, body := server.Classify(st, runErr)
	if body.Verify != nil {
		if err := printValue(out, adviseFormat, body); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	return fmt.Errorf("%s (status %d)", body.Error, status)
}

func printStrategy(w io.Writer, format string, final *advice.StrategyDraft) error {
	if format == "" || format == "text" {
		_, err := io.WriteString(w, renderStrategy(final))
		return err
	}
	return printValue(w, format, final)
}

// printValue writes v as JSON or YAML. YAML output follows the JSON field
// names.
func printValue(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	switch format {
	case "json", "text", "":
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	}
	return errors.New("unknown format " + format + ": use text, json or yaml")
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	roleStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62"))
)

// renderStrategy formats a strategy for the terminal
func renderStrategy(d *advice.StrategyDraft) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ARAM strategy") + "  " + roleStyle.Render(string(d.Role)) + "\n\n")

	for _, tip := range d.TLDR {
		b.WriteString("  • " + tip + "\n")
	}

	if len(d.BuildPlan) > 0 {
		b.WriteString("\n" + headingStyle.Render("Build plan") + "\n")
		for _, step := range d.BuildPlan {
			names := make([]string, len(step.Items))
			for i, it := range step.Items {
				names[i] = fmt.Sprintf("%s (%d)", it.Name, it.ID)
			}
			line := fmt.Sprintf("  %s: %s", step.Trigger, strings.Join(names, ", "))
			if step.Timing != "" {
				line += mutedStyle.Render(" [" + step.Timing + "]")
			}
			b.WriteString(line + "\n")
			if step.Why != "" {
				b.WriteString(mutedStyle.Render("    "+step.Why) + "\n")
			}
		}
	}

	if len(d.Threats) > 0 {
		b.WriteString("\n" + headingStyle.Render("Threats") + "\n")
		for _, t := range d.Threats {
			b.WriteString(fmt.Sprintf("  %s: %s\n", t.Name, t.Why))
		}
	}

	if len(d.Evidence) > 0 {
		refs := make([]string, len(d.Evidence))
		for i, ev := range d.Evidence {
			if ev.Type == advice.EvidenceItem {
				refs[i] = fmt.Sprintf("item:%d", ev.ItemID)
			} else {
				refs[i] = ev.Type + ":" + ev.DocID
			}
		}
		b.WriteString("\n" + mutedStyle.Render("evidence: "+strings.Join(refs, " ")) + "\n")
	}
	return b.String()
}

func init() {
	adviseCmd.PersistentFlags().StringVar(&advisePatch, "patch", "", "patch id (default: data.default_patch)")
	adviseCmd.PersistentFlags().StringVarP(&adviseFormat, "format", "f", "text", "output format: text, json or yaml")
	adviseCmd.PersistentFlags().StringSliceVar(&adviseAlly, "ally", nil, "allied champions")
	adviseCmd.PersistentFlags().StringSliceVar(&adviseEnemy, "enemy", nil, "enemy champions")
	adviseCmd.PersistentFlags().BoolVar(&adviseTrace, "trace", false, "print pipeline stages to stderr")
	adviseInGameCmd.Flags().StringVar(&adviseChamp, "champ", "", "your champion")
	adviseInGameCmd.Flags().BoolVar(&adviseLive, "live", false, "read champions from the running game")

	adviseCmd.AddCommand(advisePreGameCmd, adviseInGameCmd)
}
