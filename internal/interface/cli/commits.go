package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/jinford/repo-qa/internal/core/commits"
)

// CommitsPollAction は新しいコミットを取り込み、要約を保存する
func CommitsPollAction(ctx context.Context, cmd *cli.Command) error {
	projectID, err := parseProjectID(cmd.String("project"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	records, err := appCtx.Container.CommitPoller.Poll(ctx, projectID)
	if err != nil {
		return err
	}

	fmt.Printf("✓ %d件のコミットを取り込みました\n", len(records))
	return printCommits(records)
}

// CommitsListAction は保存済みのコミットを新しい順に表示する
func CommitsListAction(ctx context.Context, cmd *cli.Command) error {
	projectID, err := parseProjectID(cmd.String("project"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	var records []*commits.CommitRecord
	if cmd.Bool("refresh") {
		records, err = appCtx.Container.CommitPoller.Refresh(ctx, projectID)
	} else {
		records, err = appCtx.Container.CommitPoller.List(ctx, projectID)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("コミットはありません")
		return nil
	}
	return printCommits(records)
}

func printCommits(records []*commits.CommitRecord) error {
	if len(records) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tDATE\tAUTHOR\tSUMMARY")
	for _, r := range records {
		hash := r.CommitHash
		if len(hash) > 8 {
			hash = hash[:8]
		}
		summary := strings.ReplaceAll(r.Summary, "\n", " ")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", hash, r.CommitDate.Format("2006-01-02"), r.CommitAuthorName, summary)
	}
	return w.Flush()
}
