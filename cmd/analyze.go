package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/stats"
)

const analyzeSystemPrompt = `You are a Valorant performance analyst for an amateur club with a male and a
female roster. You are given structured data aggregated from end-of-match
scoreboards and a question from a player or coach.

Rules:
- Answer ONLY from the data provided. Never invent or estimate statistics.
- Always cite specific numbers when making a claim.
- If the data is insufficient to answer confidently, say so explicitly.
- Be concise and actionable.

Metrics glossary:
- ACS: Average Combat Score for the match. 200+ is solid, 250+ is strong.
- K / D / A: kills, deaths, assists per game.
- ECON: economy rating (damage per 1000 credits spent).
- FB: first bloods (opening kills) per game.
- Plants / Defuses: spike plants and defuses per game.
- Win% and round win%: from the cohort's point of view. In single-cohort
  matches a player's result follows the slot they were in.
- UNKNOWN map: the map name could not be read from the screenshot.`

var (
	analyzeModel  string
	analyzeAPIKey string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "AI-powered grounded analysis (requires ANTHROPIC_API_KEY)",
}

var analyzeCohortCmd = &cobra.Command{
	Use:   "cohort <male|female> <question>",
	Short: "Analyze a cohort's player averages and map records with AI",
	Args:  cobra.ExactArgs(2),
	RunE:  runAnalyzeCohort,
}

var analyzeGameCmd = &cobra.Command{
	Use:   "game <game-id> <question>",
	Short: "Analyze a single stored game with AI",
	Args:  cobra.ExactArgs(2),
	RunE:  runAnalyzeGame,
}

func init() {
	analyzeCmd.PersistentFlags().StringVar(&analyzeModel, "model", "claude-haiku-4-5-20251001", "Anthropic model to use")
	analyzeCmd.PersistentFlags().StringVar(&analyzeAPIKey, "api-key", "", "Anthropic API key (falls back to $ANTHROPIC_API_KEY)")

	analyzeCmd.AddCommand(analyzeCohortCmd)
	analyzeCmd.AddCommand(analyzeGameCmd)
}

func runAnalyzeCohort(cmd *cobra.Command, args []string) error {
	c, err := model.ParseCohort(args[0])
	if err != nil {
		return err
	}
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	rep, err := stats.New(db).Cohort(cmd.Context(), c)
	if err != nil {
		return err
	}
	if len(rep.Players) == 0 {
		return fmt.Errorf("no %s games stored yet", c)
	}
	contextJSON, err := buildCohortContext(c, rep)
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}
	return callAnthropic(cmd.Context(), analyzeAPIKey, analyzeModel, contextJSON, args[1])
}

func runAnalyzeGame(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid game id %q: %w", args[0], err)
	}
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	game, err := db.GetGame(ctx, id)
	if err != nil {
		return fmt.Errorf("find game: %w", err)
	}
	if game == nil {
		return fmt.Errorf("no game with id %d", id)
	}
	rows := make(map[model.Cohort][]model.PlayerGameStat, len(model.Cohorts))
	for _, c := range model.Cohorts {
		r, err := db.GetPlayerGameStats(ctx, c, id)
		if err != nil {
			return fmt.Errorf("query %s rows: %w", c, err)
		}
		rows[c] = r
	}
	contextJSON, err := buildGameContext(game, rows)
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}
	return callAnthropic(ctx, analyzeAPIKey, analyzeModel, contextJSON, args[1])
}

// buildCohortContext serialises a cohort report into compact JSON.
func buildCohortContext(c model.Cohort, rep stats.CohortReport) (string, error) {
	games := 0
	for _, m := range rep.Maps {
		games += m.GamesPlayed()
	}
	doc := map[string]any{
		"subject":        "cohort",
		"cohort":         c.String(),
		"games_analyzed": games,
		"players":        rep.Players,
		"maps":           rep.Maps,
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// buildGameContext serialises one game and its cohort rows into compact JSON.
func buildGameContext(game *model.Match, rows map[model.Cohort][]model.PlayerGameStat) (string, error) {
	mapName := game.MapName
	if mapName == "" {
		mapName = model.UnknownMap
	}
	doc := map[string]any{
		"subject":       "game",
		"game_id":       game.ID,
		"map":           mapName,
		"winner":        game.Winner.String(),
		"team1_rounds":  game.FirstRounds,
		"team2_rounds":  game.SecondRounds,
		"is_inter_team": game.InterCohort,
	}
	for c, r := range rows {
		if len(r) > 0 {
			doc[c.String()] = r
		}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// callAnthropic streams a response from the Anthropic API and prints it to stdout.
func callAnthropic(ctx context.Context, apiKey, modelID, dataJSON, question string) error {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("no API key: set ANTHROPIC_API_KEY or use --api-key")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	userMsg := fmt.Sprintf("DATA:\n%s\n\nQUESTION: %s", dataJSON, question)

	fmt.Fprintln(os.Stdout, "\n─── AI Analysis ─────────────────────────────────────")

	stream := client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: analyzeSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMsg)),
		},
	})

	for stream.Next() {
		evt := stream.Current()
		if evt.Type == "content_block_delta" {
			delta := evt.AsContentBlockDelta()
			if delta.Delta.Type == "text_delta" {
				fmt.Fprint(os.Stdout, delta.Delta.AsTextDelta().Text)
			}
		}
	}
	fmt.Fprintln(os.Stdout, "\n─────────────────────────────────────────────────────")

	if err := stream.Err(); err != nil {
		if strings.Contains(err.Error(), "401") || strings.Contains(err.Error(), "authentication") {
			return fmt.Errorf("API authentication failed: check your API key")
		}
		return fmt.Errorf("streaming error: %w", err)
	}
	return nil
}
