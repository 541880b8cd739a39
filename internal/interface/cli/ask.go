package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/jinford/repo-qa/internal/core/ask"
)

// AskAction は質問に回答し、回答を標準出力へ逐次表示する
func AskAction(ctx context.Context, cmd *cli.Command) error {
	projectID, err := parseProjectID(cmd.String("project"))
	if err != nil {
		return err
	}
	question := cmd.String("question")

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	answer, err := appCtx.Container.AskService.Ask(ctx, ask.AskParams{
		ProjectID: mo.Some(projectID),
		Question:  question,
	})
	if err != nil {
		return err
	}
	defer answer.Stream.Close()

	if len(answer.FileReferences) > 0 {
		fmt.Println("参照ファイル:")
		for _, ref := range answer.FileReferences {
			fmt.Printf("  - %s (%.3f)\n", ref.FileName, ref.Similarity)
		}
		fmt.Println()
	}

	for token := range answer.Stream.Tokens() {
		fmt.Print(token)
	}
	fmt.Println()

	outcome := answer.Stream.Outcome()
	appCtx.Logger.Debug("回答ストリームが終了しました", "outcome", outcome)

	if cmd.Bool("save") && (outcome == ask.OutcomeCompleted || outcome == ask.OutcomeFallback) {
		record, err := appCtx.Container.AskService.SaveAnswer(ctx, ask.SaveAnswerParams{
			ProjectID:      projectID,
			UserID:         cmd.String("user"),
			Question:       question,
			Answer:         answer.Stream.Text(),
			FileReferences: answer.FileReferences,
		})
		if err != nil {
			return err
		}
		fmt.Printf("\n✓ 回答を保存しました (ID: %s)\n", record.ID)
	}
	return nil
}

// QuestionsListAction は質問履歴を新しい順に表示する
func QuestionsListAction(ctx context.Context, cmd *cli.Command) error {
	projectID, err := parseProjectID(cmd.String("project"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	records, err := appCtx.Container.AskService.ListQuestions(ctx, projectID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("質問履歴はありません")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tUSER\tREFS\tQUESTION")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.CreatedAt.Format(time.RFC3339), r.UserID, len(r.FileReferences), r.Question)
	}
	return w.Flush()
}
