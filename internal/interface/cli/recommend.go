package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// RecommendAction は読み始めるのに向いたファイルを表示する
func RecommendAction(ctx context.Context, cmd *cli.Command) error {
	projectID, err := parseProjectID(cmd.String("project"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	recs, err := appCtx.Container.Recommender.Recommend(ctx, projectID)
	if err != nil {
		return err
	}
	if n := int(cmd.Int("limit")); n > 0 && len(recs) > n {
		recs = recs[:n]
	}
	if len(recs) == 0 {
		fmt.Println("推薦できるファイルはありません（インデックス化済みか確認してください）")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DIFFICULTY\tSIZE\tPATH\tDESCRIPTION")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.Difficulty, r.Size, r.Path, r.Description)
	}
	return w.Flush()
}
